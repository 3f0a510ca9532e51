package nn_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/tumorclf/internal/backend/cpu"
	"github.com/born-ml/tumorclf/internal/nn"
	"github.com/born-ml/tumorclf/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTensor(t *testing.T, data []float32, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return x
}

// TestSequential_ForwardShape runs a small CNN end to end.
func TestSequential_ForwardShape(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(1))

	model := nn.NewSequential(
		nn.NewConv2D(1, 4, 3, 1, 0, true, backend, rng),
		nn.NewBatchNorm2D(4, nn.DefaultBatchNormMomentum, nn.DefaultBatchNormEpsilon, backend),
		nn.NewReLU(backend),
		nn.NewMaxPool2D(2, 2, backend),
		nn.NewFlatten(),
		nn.NewLinear(4*3*3, 3, backend, rng),
	)

	x := tensor.Randn(tensor.Shape{2, 1, 8, 8}, rng)
	out := model.Forward(x)
	assert.True(t, out.Shape().Equal(tensor.Shape{2, 3}), "got %v", out.Shape())

	grad := model.Backward(tensor.Ones(out.Shape()))
	assert.True(t, grad.Shape().Equal(x.Shape()))

	for _, p := range model.Parameters() {
		assert.True(t, p.Grad().Shape().Equal(p.Tensor().Shape()), p.Name())
	}
	assert.Equal(t, 4*1*3*3+4+4+4+36*3+3, nn.CountParameters(model))
}

// TestSequential_GradientThroughLoss compares parameter gradients of a
// Linear/Softmax/Linear stack under cross-entropy with finite differences.
func TestSequential_GradientThroughLoss(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(7))

	model := nn.NewSequential(
		nn.NewLinear(4, 5, backend, rng),
		nn.NewSoftmax(backend),
		nn.NewLinear(5, 3, backend, rng),
	)
	x := tensor.Randn(tensor.Shape{3, 4}, rng)
	targets := []int32{0, 2, 1}
	criterion := nn.NewCrossEntropyLoss()

	lossAt := func() float64 {
		return float64(criterion.Forward(model.Forward(x), targets))
	}

	lossAt()
	model.Backward(criterion.Backward())

	const h = 1e-2
	for _, p := range model.Parameters() {
		data := p.Tensor().Data()
		analytic := p.Grad().Clone().Data()
		for i := range data {
			orig := data[i]
			data[i] = orig + h
			plus := lossAt()
			data[i] = orig - h
			minus := lossAt()
			data[i] = orig

			numeric := (plus - minus) / (2 * h)
			tol := 1e-2 * math.Max(1, math.Abs(numeric))
			assert.InDelta(t, numeric, float64(analytic[i]), tol, "%s[%d]", p.Name(), i)
		}
	}
}

func TestParameter_AccumulateAndZero(t *testing.T) {
	p := nn.NewParameter("w", tensor.Zeros(tensor.Shape{2}))
	g := mustTensor(t, []float32{1, 2}, tensor.Shape{2})

	p.AccumulateGrad(g)
	p.AccumulateGrad(g)
	assert.Equal(t, []float32{2, 4}, p.Grad().Data())

	p.ZeroGrad()
	assert.Equal(t, []float32{0, 0}, p.Grad().Data())

	assert.Panics(t, func() { p.AccumulateGrad(tensor.Zeros(tensor.Shape{3})) })
}

func TestXavier_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	w := nn.Xavier(10, 20, tensor.Shape{20, 10}, rng)
	limit := float32(math.Sqrt(6.0 / 30.0))
	for _, v := range w.Data() {
		assert.LessOrEqual(t, v, limit)
		assert.GreaterOrEqual(t, v, -limit)
	}
}

func TestBatchNorm2D_RunningStatistics(t *testing.T) {
	backend := cpu.New()
	bn := nn.NewBatchNorm2D(1, 0.9, 1e-3, backend)

	// Batch mean 2.5, biased variance 1.25.
	x := mustTensor(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})
	out := bn.Forward(x)

	var mean float64
	for _, v := range out.Data() {
		mean += float64(v)
	}
	assert.InDelta(t, 0, mean/4, 1e-5)

	buffers := bn.Buffers()
	assert.InDelta(t, 0.25, buffers["running_mean"].Data()[0], 1e-6)
	assert.InDelta(t, 0.9+0.1*1.25, buffers["running_var"].Data()[0], 1e-6)

	// Inference mode leaves the running statistics untouched.
	bn.SetTraining(false)
	bn.Forward(x)
	assert.InDelta(t, 0.25, buffers["running_mean"].Data()[0], 1e-6)
}

func TestMaxPool2D_BackwardRoutesToMax(t *testing.T) {
	backend := cpu.New()
	pool := nn.NewMaxPool2D(2, 2, backend)

	x := mustTensor(t, []float32{
		1, 5, 2, 0,
		3, 4, 8, 1,
		0, 0, 1, 1,
		9, 0, 1, 2,
	}, tensor.Shape{1, 1, 4, 4})
	out := pool.Forward(x)
	assert.Equal(t, []float32{5, 8, 9, 2}, out.Data())
	assert.Equal(t, [2]int{2, 2}, pool.ComputeOutputSize(4, 4))

	grad := pool.Backward(mustTensor(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}))
	assert.Equal(t, []float32{
		0, 1, 0, 0,
		0, 0, 2, 0,
		0, 0, 0, 0,
		3, 0, 0, 4,
	}, grad.Data())
}

func TestFlatten_RoundTrip(t *testing.T) {
	f := nn.NewFlatten()
	x := tensor.Zeros(tensor.Shape{2, 3, 4, 5})
	out := f.Forward(x)
	assert.True(t, out.Shape().Equal(tensor.Shape{2, 60}))
	back := f.Backward(out)
	assert.True(t, back.Shape().Equal(x.Shape()))
}

func TestModules_BackwardBeforeForwardPanics(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(1))
	g := tensor.Zeros(tensor.Shape{1, 1})

	assert.Panics(t, func() { nn.NewReLU(backend).Backward(g) })
	assert.Panics(t, func() { nn.NewSoftmax(backend).Backward(g) })
	assert.Panics(t, func() { nn.NewLinear(1, 1, backend, rng).Backward(g) })
	assert.Panics(t, func() { nn.NewMaxPool2D(2, 2, backend).Backward(g) })
	assert.Panics(t, func() { nn.NewFlatten().Backward(g) })
	assert.Panics(t, func() { nn.NewCrossEntropyLoss().Backward() })
}

func TestSequential_StateDictIncludesBuffers(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewSource(1))
	model := nn.NewSequential(
		nn.NewConv2D(1, 2, 1, 1, 0, true, backend, rng),
		nn.NewBatchNorm2D(2, nn.DefaultBatchNormMomentum, nn.DefaultBatchNormEpsilon, backend),
		nn.NewReLU(backend),
	)

	state := model.StateDict()
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{
		"0.conv2d.weight", "0.conv2d.bias",
		"1.gamma", "1.beta", "1.running_mean", "1.running_var",
	}, keys)
}
