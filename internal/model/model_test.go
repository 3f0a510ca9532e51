package model_test

import (
	"math/rand"
	"testing"

	"github.com/born-ml/tumorclf/internal/backend/cpu"
	"github.com/born-ml/tumorclf/internal/model"
	"github.com/born-ml/tumorclf/internal/nn"
	"github.com/born-ml/tumorclf/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureSize(t *testing.T) {
	// 32: 30 -> 15, 14 -> 7, 7 -> 3, 3
	// 64: 62 -> 31, 30 -> 15, 15 -> 7, 7
	// 128: 126 -> 63, 62 -> 31, 31 -> 15, 15
	tests := map[int]int{32: 16 * 3 * 3, 64: 16 * 7 * 7, 128: 16 * 15 * 15}
	for size, want := range tests {
		got, err := model.FeatureSize(size)
		require.NoError(t, err)
		assert.Equal(t, want, got, "size %d", size)
	}

	_, err := model.FeatureSize(6)
	assert.Error(t, err)
}

func TestNew_OutputShape(t *testing.T) {
	backend := cpu.New()
	for _, size := range []int{32, 64} {
		m, err := model.New(size, backend, rand.New(rand.NewSource(1)))
		require.NoError(t, err)

		x := tensor.Uniform(tensor.Shape{2, 1, size, size}, 0, 1, rand.New(rand.NewSource(2)))
		out := m.Forward(x)
		assert.Equal(t, []int{2, model.NumClasses}, []int(out.Shape()), "size %d", size)

		grad := m.Backward(tensor.Ones(out.Shape()))
		assert.Equal(t, []int(x.Shape()), []int(grad.Shape()))
	}
}

func TestNew_Layers(t *testing.T) {
	m, err := model.New(64, cpu.New(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	// 3 pooled blocks of 5 modules, one block of 4, then Flatten, Dense,
	// Softmax, Dense.
	assert.Equal(t, 3*5+4+4, m.Len())

	params := 0
	params += 1*32*3*3 + 32 + 2*32
	params += 32*16*2*2 + 16 + 2*16
	params += 16*8 + 8 + 2*8
	params += 8*16 + 16 + 2*16
	params += 16*7*7*5 + 5
	params += 5*3 + 3
	assert.Equal(t, params, nn.CountParameters(m))
}

func TestNew_InferenceIsDeterministic(t *testing.T) {
	m, err := model.New(32, cpu.New(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	nn.SetTraining(m, false)

	x := tensor.Uniform(tensor.Shape{3, 1, 32, 32}, 0, 1, rand.New(rand.NewSource(5)))
	assert.Equal(t, m.Forward(x).Data(), m.Forward(x).Data())
}
