package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/tumorclf/internal/parallel"
	"github.com/born-ml/tumorclf/internal/tensor"
)

// MaxPool2D performs 2D max pooling without padding.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
// Where:
//
//	out_height = (height - kernelSize) / stride + 1
//	out_width = (width - kernelSize) / stride + 1
//
// Trailing rows and columns that do not fill a window are dropped.
// The returned indices hold, for every output element, the flat input index
// of the selected maximum; MaxPool2DBackward routes gradients through them.
//
// Example (2x2 pool, stride=2):
//
//	Input: [[1,2,3,4],    Output: [[6,8],
//	        [5,6,7,8],             [14,16]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) MaxPool2D(input *tensor.Tensor, kernelSize, stride int) (*tensor.Tensor, []int32) {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	N, C, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]

	if kernelSize <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}
	if kernelSize > H || kernelSize > W {
		panic(fmt.Sprintf("maxpool2d: kernel size %d too large for input %dx%d", kernelSize, H, W))
	}

	HOut := (H-kernelSize)/stride + 1
	WOut := (W-kernelSize)/stride + 1

	output := tensor.Zeros(tensor.Shape{N, C, HOut, WOut})
	indices := make([]int32, output.NumElements())
	inputData := input.Data()
	outputData := output.Data()

	parallel.ForBatch(N, C, func(n, c int) {
		// Pre-slice channel plane: eliminates (n*C+c)*H*W bounds checks
		channelOffset := (n*C + c) * H * W
		channelData := inputData[channelOffset : channelOffset+H*W]
		outOffset := (n*C + c) * HOut * WOut

		for outH := 0; outH < HOut; outH++ {
			hStart := outH * stride
			for outW := 0; outW < WOut; outW++ {
				wStart := outW * stride

				maxVal := float32(math.Inf(-1))
				maxIdx := hStart*W + wStart
				for kh := 0; kh < kernelSize; kh++ {
					rowStart := (hStart + kh) * W
					rowData := channelData[rowStart : rowStart+W]
					for kw := 0; kw < kernelSize; kw++ {
						if val := rowData[wStart+kw]; val > maxVal {
							maxVal = val
							maxIdx = rowStart + wStart + kw
						}
					}
				}

				o := outOffset + outH*WOut + outW
				outputData[o] = maxVal
				indices[o] = int32(channelOffset + maxIdx)
			}
		}
	}, cpu.par)

	return output, indices
}

// MaxPool2DBackward routes output gradients to the input positions selected
// in the forward pass. All other positions receive zero gradient.
//
// Example (2x2 pool, stride=2):
//
//	Input:  [[1, 2],  Output: [4]  Input Grad: [[0, 0],
//	         [3, 4]]                             [0, grad]]
//
// References:
//   - CS231n: Backprop for pooling layers
func (cpu *CPUBackend) MaxPool2DBackward(grad *tensor.Tensor, indices []int32, inputShape tensor.Shape) *tensor.Tensor {
	if len(indices) != grad.NumElements() {
		panic(fmt.Sprintf("maxpool2d backward: %d indices for %d gradients", len(indices), grad.NumElements()))
	}
	inputGrad := tensor.Zeros(inputShape)
	dst := inputGrad.Data()
	// Windows never overlap across planes, and with stride >= kernel size
	// they never overlap at all, but accumulate anyway to stay correct for
	// overlapping configurations.
	for i, g := range grad.Data() {
		dst[indices[i]] += g
	}
	return inputGrad
}
