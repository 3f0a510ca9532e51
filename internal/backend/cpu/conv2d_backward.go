package cpu

import (
	"fmt"

	"github.com/born-ml/tumorclf/internal/parallel"
	"github.com/born-ml/tumorclf/internal/tensor"
)

// Conv2DGrads holds the gradients produced by Conv2DBackward.
type Conv2DGrads struct {
	Input  *tensor.Tensor // [N, C_in, H, W]
	Kernel *tensor.Tensor // [C_out, C_in, K_h, K_w]
	Bias   *tensor.Tensor // [C_out]
}

// Conv2DBackward computes gradients of a convolution w.r.t. its input, kernel and bias.
//
// With col = im2col(input) per sample and G the output gradient viewed as
// [C_out, H_out*W_out]:
//
//	dKernel += G @ col^T
//	dCol     = Kernel^T @ G,  dInput = col2im(dCol)
//	dBias   += sum over positions of G
//
// Per-sample kernel gradients are reduced in sample order so the result does
// not depend on goroutine scheduling.
//
// References:
//   - CS231n: Convolutional Neural Networks, backprop through im2col
//   - "A guide to convolution arithmetic for deep learning" (Dumoulin & Visin, 2016)
func (cpu *CPUBackend) Conv2DBackward(input, kernel, grad *tensor.Tensor, stride, padding int) Conv2DGrads {
	g := newConvGeometry(input.Shape(), kernel.Shape(), stride, padding)
	want := tensor.Shape{g.N, g.COut, g.HOut, g.WOut}
	if !grad.Shape().Equal(want) {
		panic(fmt.Sprintf("conv2d backward: grad shape %v, want %v", grad.Shape(), want))
	}

	inputGrad := tensor.Zeros(input.Shape())
	kernelSize := kernel.NumElements()
	partialKernel := make([]float32, g.N*kernelSize)
	partialBias := make([]float32, g.N*g.COut)

	inputData := input.Data()
	kernelData := kernel.Data()
	gradData := grad.Data()
	inputGradData := inputGrad.Data()

	inPlane := g.CIn * g.H * g.W
	outPlane := g.COut * g.colCols

	parallel.For(g.N, func(n int) {
		col := make([]float32, g.colRows*g.colCols)
		im2col(col, inputData[n*inPlane:(n+1)*inPlane], g)

		gOut := gradData[n*outPlane : (n+1)*outPlane]
		dK := partialKernel[n*kernelSize : (n+1)*kernelSize]
		dB := partialBias[n*g.COut : (n+1)*g.COut]
		dCol := make([]float32, len(col))

		for co := 0; co < g.COut; co++ {
			gRow := gOut[co*g.colCols : (co+1)*g.colCols]
			kRow := kernelData[co*g.colRows : (co+1)*g.colRows]
			dKRow := dK[co*g.colRows : (co+1)*g.colRows]

			var sum float32
			for _, v := range gRow {
				sum += v
			}
			dB[co] = sum

			for k := 0; k < g.colRows; k++ {
				colRow := col[k*g.colCols : (k+1)*g.colCols]
				dColRow := dCol[k*g.colCols : (k+1)*g.colCols]
				w := kRow[k]
				var acc float32
				for p, gv := range gRow {
					acc += gv * colRow[p]
					dColRow[p] += w * gv
				}
				dKRow[k] = acc
			}
		}

		col2im(inputGradData[n*inPlane:(n+1)*inPlane], dCol, g)
	}, cpu.par)

	kernelGrad := tensor.Zeros(kernel.Shape())
	biasGrad := tensor.Zeros(tensor.Shape{g.COut})
	kg := kernelGrad.Data()
	bg := biasGrad.Data()
	for n := 0; n < g.N; n++ {
		for i, v := range partialKernel[n*kernelSize : (n+1)*kernelSize] {
			kg[i] += v
		}
		for i, v := range partialBias[n*g.COut : (n+1)*g.COut] {
			bg[i] += v
		}
	}

	return Conv2DGrads{Input: inputGrad, Kernel: kernelGrad, Bias: biasGrad}
}
