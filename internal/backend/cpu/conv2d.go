package cpu

import (
	"fmt"

	"github.com/born-ml/tumorclf/internal/parallel"
	"github.com/born-ml/tumorclf/internal/tensor"
)

// convGeometry holds the dimensions shared by the forward and backward passes.
type convGeometry struct {
	N, CIn, H, W     int
	COut, KH, KW     int
	HOut, WOut       int
	stride, padding  int
	colRows, colCols int // im2col matrix: [CIn*KH*KW, HOut*WOut]
}

func newConvGeometry(inputShape, kernelShape tensor.Shape, stride, padding int) convGeometry {
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid stride=%d padding=%d", stride, padding))
	}
	g := convGeometry{
		N: inputShape[0], CIn: inputShape[1], H: inputShape[2], W: inputShape[3],
		COut: kernelShape[0], KH: kernelShape[2], KW: kernelShape[3],
		stride: stride, padding: padding,
	}
	if g.CIn != kernelShape[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", g.CIn, kernelShape[1]))
	}

	// out_h = (H + 2*padding - KH) / stride + 1
	g.HOut = (g.H+2*padding-g.KH)/stride + 1
	g.WOut = (g.W+2*padding-g.KW)/stride + 1
	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (input %dx%d, kernel %dx%d)",
			g.HOut, g.WOut, g.H, g.W, g.KH, g.KW))
	}
	g.colRows = g.CIn * g.KH * g.KW
	g.colCols = g.HOut * g.WOut
	return g
}

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Bias shape:   [out_channels] or nil
// Output shape: [batch, out_channels, out_h, out_w]
//
// Each sample is lowered to a [C_in*K_h*K_w, H_out*W_out] column matrix and
// multiplied by the kernel viewed as [C_out, C_in*K_h*K_w]. Samples are
// processed in parallel; each goroutine writes only its own output plane.
//
// Reference: "High Performance Convolutional Neural Networks for Document Processing"
// (Chellapilla et al., 2006).
func (cpu *CPUBackend) Conv2D(input, kernel, bias *tensor.Tensor, stride, padding int) *tensor.Tensor {
	g := newConvGeometry(input.Shape(), kernel.Shape(), stride, padding)
	if bias != nil && bias.NumElements() != g.COut {
		panic(fmt.Sprintf("conv2d: bias has %d elements, want %d", bias.NumElements(), g.COut))
	}

	output := tensor.Zeros(tensor.Shape{g.N, g.COut, g.HOut, g.WOut})
	inputData := input.Data()
	kernelData := kernel.Data()
	outputData := output.Data()
	var biasData []float32
	if bias != nil {
		biasData = bias.Data()
	}

	inPlane := g.CIn * g.H * g.W
	outPlane := g.COut * g.colCols

	parallel.For(g.N, func(n int) {
		col := make([]float32, g.colRows*g.colCols)
		im2col(col, inputData[n*inPlane:(n+1)*inPlane], g)

		out := outputData[n*outPlane : (n+1)*outPlane]
		for co := 0; co < g.COut; co++ {
			row := out[co*g.colCols : (co+1)*g.colCols]
			if biasData != nil {
				for p := range row {
					row[p] = biasData[co]
				}
			}
			kRow := kernelData[co*g.colRows : (co+1)*g.colRows]
			for k, w := range kRow {
				if w == 0 {
					continue
				}
				colRow := col[k*g.colCols : (k+1)*g.colCols]
				for p, v := range colRow {
					row[p] += w * v
				}
			}
		}
	}, cpu.par)

	return output
}

// im2col lowers one sample [C, H, W] into col [C*KH*KW, HOut*WOut].
//
// Row k = (c, kh, kw) holds, for every output position, the input value under
// that kernel tap. Positions falling in the padding are zero.
func im2col(col, sample []float32, g convGeometry) {
	for c := 0; c < g.CIn; c++ {
		plane := sample[c*g.H*g.W : (c+1)*g.H*g.W]
		for kh := 0; kh < g.KH; kh++ {
			for kw := 0; kw < g.KW; kw++ {
				k := (c*g.KH+kh)*g.KW + kw
				row := col[k*g.colCols : (k+1)*g.colCols]
				p := 0
				for oh := 0; oh < g.HOut; oh++ {
					h := oh*g.stride - g.padding + kh
					for ow := 0; ow < g.WOut; ow++ {
						w := ow*g.stride - g.padding + kw
						if h >= 0 && h < g.H && w >= 0 && w < g.W {
							row[p] = plane[h*g.W+w]
						} else {
							row[p] = 0
						}
						p++
					}
				}
			}
		}
	}
}

// col2im is the adjoint of im2col: it scatters col back into sample, summing
// overlapping taps.
func col2im(sample, col []float32, g convGeometry) {
	for c := 0; c < g.CIn; c++ {
		plane := sample[c*g.H*g.W : (c+1)*g.H*g.W]
		for kh := 0; kh < g.KH; kh++ {
			for kw := 0; kw < g.KW; kw++ {
				k := (c*g.KH+kh)*g.KW + kw
				row := col[k*g.colCols : (k+1)*g.colCols]
				p := 0
				for oh := 0; oh < g.HOut; oh++ {
					h := oh*g.stride - g.padding + kh
					for ow := 0; ow < g.WOut; ow++ {
						w := ow*g.stride - g.padding + kw
						if h >= 0 && h < g.H && w >= 0 && w < g.W {
							plane[h*g.W+w] += row[p]
						}
						p++
					}
				}
			}
		}
	}
}
