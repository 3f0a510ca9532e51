package cpu

import (
	"math"
	"testing"

	"github.com/born-ml/tumorclf/internal/tensor"
)

// weightedSum is the scalar probe loss L = sum(out * w); dL/dout = w.
func weightedSum(out, w *tensor.Tensor) float64 {
	var s float64
	wd := w.Data()
	for i, v := range out.Data() {
		s += float64(v) * float64(wd[i])
	}
	return s
}

// checkGradient compares an analytic gradient of L = sum(forward() * w) with
// central finite differences over every element of param.
func checkGradient(t *testing.T, name string, param, analytic *tensor.Tensor, forward func() *tensor.Tensor, w *tensor.Tensor) {
	t.Helper()
	const h = 1e-2
	data := param.Data()
	for i := range data {
		orig := data[i]
		data[i] = orig + h
		plus := weightedSum(forward(), w)
		data[i] = orig - h
		minus := weightedSum(forward(), w)
		data[i] = orig

		numeric := (plus - minus) / (2 * h)
		got := float64(analytic.Data()[i])
		tol := 1e-2 * math.Max(1, math.Abs(numeric))
		if math.Abs(numeric-got) > tol {
			t.Errorf("%s[%d]: analytic %.5f, numeric %.5f", name, i, got, numeric)
		}
	}
}
