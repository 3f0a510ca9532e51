package cpu

import (
	"fmt"

	"github.com/born-ml/tumorclf/internal/parallel"
	"github.com/born-ml/tumorclf/internal/tensor"
)

// Linear computes output = input @ weight^T + bias.
//
// Input shape:  [batch, in_features]
// Weight shape: [out_features, in_features]
// Bias shape:   [out_features] or nil
// Output shape: [batch, out_features]
func (cpu *CPUBackend) Linear(input, weight, bias *tensor.Tensor) *tensor.Tensor {
	batch, in, out := linearDims(input, weight)
	if bias != nil && bias.NumElements() != out {
		panic(fmt.Sprintf("linear: bias has %d elements, want %d", bias.NumElements(), out))
	}

	output := tensor.Zeros(tensor.Shape{batch, out})
	x := input.Data()
	w := weight.Data()
	y := output.Data()

	parallel.For(batch, func(b int) {
		xRow := x[b*in : (b+1)*in]
		yRow := y[b*out : (b+1)*out]
		for o := 0; o < out; o++ {
			wRow := w[o*in : (o+1)*in]
			var sum float32
			for i, v := range xRow {
				sum += v * wRow[i]
			}
			if bias != nil {
				sum += bias.Data()[o]
			}
			yRow[o] = sum
		}
	}, cpu.par)

	return output
}

// LinearGrads holds the gradients produced by LinearBackward.
type LinearGrads struct {
	Input  *tensor.Tensor // [batch, in_features]
	Weight *tensor.Tensor // [out_features, in_features]
	Bias   *tensor.Tensor // [out_features]
}

// LinearBackward computes gradients of Linear given dL/dOutput.
//
//	dInput  = grad @ weight
//	dWeight = grad^T @ input
//	dBias   = sum over batch of grad
func (cpu *CPUBackend) LinearBackward(input, weight, grad *tensor.Tensor) LinearGrads {
	batch, in, out := linearDims(input, weight)
	if !grad.Shape().Equal(tensor.Shape{batch, out}) {
		panic(fmt.Sprintf("linear backward: grad shape %v, want [%d %d]", grad.Shape(), batch, out))
	}

	inputGrad := tensor.Zeros(input.Shape())
	weightGrad := tensor.Zeros(weight.Shape())
	biasGrad := tensor.Zeros(tensor.Shape{out})

	x := input.Data()
	w := weight.Data()
	g := grad.Data()
	dx := inputGrad.Data()
	dw := weightGrad.Data()
	db := biasGrad.Data()

	parallel.For(batch, func(b int) {
		gRow := g[b*out : (b+1)*out]
		dxRow := dx[b*in : (b+1)*in]
		for o, gv := range gRow {
			if gv == 0 {
				continue
			}
			wRow := w[o*in : (o+1)*in]
			for i, wv := range wRow {
				dxRow[i] += gv * wv
			}
		}
	}, cpu.par)

	// Weight and bias gradients reduce over the batch; parallelise over
	// output rows so every goroutine owns a disjoint slice of dw.
	parallel.For(out, func(o int) {
		dwRow := dw[o*in : (o+1)*in]
		for b := 0; b < batch; b++ {
			gv := g[b*out+o]
			db[o] += gv
			if gv == 0 {
				continue
			}
			xRow := x[b*in : (b+1)*in]
			for i, xv := range xRow {
				dwRow[i] += gv * xv
			}
		}
	}, cpu.par)

	return LinearGrads{Input: inputGrad, Weight: weightGrad, Bias: biasGrad}
}

func linearDims(input, weight *tensor.Tensor) (batch, in, out int) {
	is, ws := input.Shape(), weight.Shape()
	if len(is) != 2 {
		panic(fmt.Sprintf("linear: expected 2D input [batch, features], got %v", is))
	}
	if len(ws) != 2 {
		panic(fmt.Sprintf("linear: expected 2D weight [out, in], got %v", ws))
	}
	if is[1] != ws[1] {
		panic(fmt.Sprintf("linear: input features %d != weight in_features %d", is[1], ws[1]))
	}
	return is[0], is[1], ws[0]
}
