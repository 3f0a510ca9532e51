package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/tumorclf/internal/tensor"
)

// ReLU returns max(x, 0) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.ZerosLike(x)
	dst := out.Data()
	for i, v := range x.Data() {
		if v > 0 {
			dst[i] = v
		}
	}
	return out
}

// ReLUBackward passes grad through where the forward input was positive.
func (cpu *CPUBackend) ReLUBackward(x, grad *tensor.Tensor) *tensor.Tensor {
	if x.NumElements() != grad.NumElements() {
		panic(fmt.Sprintf("relu backward: input %v vs grad %v", x.Shape(), grad.Shape()))
	}
	out := tensor.ZerosLike(grad)
	dst := out.Data()
	g := grad.Data()
	for i, v := range x.Data() {
		if v > 0 {
			dst[i] = g[i]
		}
	}
	return out
}

// Softmax normalises each row of a 2D tensor into a probability distribution.
//
// Uses the max-subtraction trick so large logits do not overflow.
func (cpu *CPUBackend) Softmax(x *tensor.Tensor) *tensor.Tensor {
	if len(x.Shape()) != 2 {
		panic(fmt.Sprintf("softmax: expected 2D input, got %v", x.Shape()))
	}
	out := tensor.ZerosLike(x)
	rows := x.Dim(0)
	for r := 0; r < rows; r++ {
		softmaxRow(out.Row(r), x.Row(r))
	}
	return out
}

// SoftmaxBackward computes dL/dx from the softmax output s and dL/ds:
//
//	dx_i = s_i * (g_i - sum_j g_j * s_j)
func (cpu *CPUBackend) SoftmaxBackward(s, grad *tensor.Tensor) *tensor.Tensor {
	if !s.Shape().Equal(grad.Shape()) {
		panic(fmt.Sprintf("softmax backward: output %v vs grad %v", s.Shape(), grad.Shape()))
	}
	out := tensor.ZerosLike(grad)
	rows := s.Dim(0)
	for r := 0; r < rows; r++ {
		sr, gr, dr := s.Row(r), grad.Row(r), out.Row(r)
		var dot float32
		for j := range sr {
			dot += sr[j] * gr[j]
		}
		for j := range sr {
			dr[j] = sr[j] * (gr[j] - dot)
		}
	}
	return out
}

// LogSoftmaxRow writes log(softmax(src)) into dst using the log-sum-exp trick.
func LogSoftmaxRow(dst, src []float32) {
	maxVal := src[0]
	for _, v := range src[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for _, v := range src {
		sum += math.Exp(float64(v - maxVal))
	}
	logSum := float32(math.Log(sum)) + maxVal
	for i, v := range src {
		dst[i] = v - logSum
	}
}

func softmaxRow(dst, src []float32) {
	maxVal := src[0]
	for _, v := range src[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float32
	for i, v := range src {
		e := float32(math.Exp(float64(v - maxVal)))
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
}
