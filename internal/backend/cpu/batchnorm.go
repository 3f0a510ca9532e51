package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/tumorclf/internal/parallel"
	"github.com/born-ml/tumorclf/internal/tensor"
)

// BatchNormCache keeps the forward-pass values needed by BatchNorm2DBackward.
type BatchNormCache struct {
	XHat   *tensor.Tensor // normalised input, same shape as the input
	InvStd []float32      // 1/sqrt(var+eps) per channel
	Mean   []float32      // batch (or running) mean per channel
	Var    []float32      // biased batch (or running) variance per channel
}

// BatchNorm2D normalises each channel of an NCHW tensor:
//
//	y = gamma * (x - mean) / sqrt(var + eps) + beta
//
// With mean and variance nil the statistics are computed over the batch and
// spatial dimensions (training mode); otherwise the given running statistics
// are used (inference mode). The variance is the biased estimator.
func (cpu *CPUBackend) BatchNorm2D(x, gamma, beta *tensor.Tensor, mean, variance []float32, eps float32) (*tensor.Tensor, BatchNormCache) {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %v", shape))
	}
	N, C, H, W := shape[0], shape[1], shape[2], shape[3]
	if gamma.NumElements() != C || beta.NumElements() != C {
		panic(fmt.Sprintf("batchnorm2d: gamma/beta must have %d elements", C))
	}
	plane := H * W
	count := float64(N * plane)
	xd := x.Data()

	cache := BatchNormCache{
		InvStd: make([]float32, C),
		Mean:   make([]float32, C),
		Var:    make([]float32, C),
	}

	if mean == nil || variance == nil {
		parallel.For(C, func(c int) {
			var sum float64
			for n := 0; n < N; n++ {
				for _, v := range xd[(n*C+c)*plane : (n*C+c+1)*plane] {
					sum += float64(v)
				}
			}
			m := sum / count
			var sq float64
			for n := 0; n < N; n++ {
				for _, v := range xd[(n*C+c)*plane : (n*C+c+1)*plane] {
					d := float64(v) - m
					sq += d * d
				}
			}
			cache.Mean[c] = float32(m)
			cache.Var[c] = float32(sq / count)
		}, cpu.par)
	} else {
		copy(cache.Mean, mean)
		copy(cache.Var, variance)
	}
	for c := 0; c < C; c++ {
		cache.InvStd[c] = float32(1 / math.Sqrt(float64(cache.Var[c])+float64(eps)))
	}

	out := tensor.ZerosLike(x)
	cache.XHat = tensor.ZerosLike(x)
	od := out.Data()
	hd := cache.XHat.Data()
	gd := gamma.Data()
	bd := beta.Data()

	parallel.ForBatch(N, C, func(n, c int) {
		off := (n*C + c) * plane
		m, inv, g, b := cache.Mean[c], cache.InvStd[c], gd[c], bd[c]
		for i := off; i < off+plane; i++ {
			xh := (xd[i] - m) * inv
			hd[i] = xh
			od[i] = g*xh + b
		}
	}, cpu.par)

	return out, cache
}

// BatchNormGrads holds the gradients produced by BatchNorm2DBackward.
type BatchNormGrads struct {
	Input *tensor.Tensor
	Gamma *tensor.Tensor
	Beta  *tensor.Tensor
}

// BatchNorm2DBackward computes gradients of BatchNorm2D.
//
// In training mode the statistics depend on the input, giving per channel
// (M = N*H*W elements):
//
//	dx = gamma*invStd/M * (M*g - sum(g) - xhat*sum(g*xhat))
//
// In inference mode the statistics are constants and dx = gamma*invStd*g.
func (cpu *CPUBackend) BatchNorm2DBackward(grad, gamma *tensor.Tensor, cache BatchNormCache, training bool) BatchNormGrads {
	shape := grad.Shape()
	if !shape.Equal(cache.XHat.Shape()) {
		panic(fmt.Sprintf("batchnorm2d backward: grad %v vs cached input %v", shape, cache.XHat.Shape()))
	}
	N, C := shape[0], shape[1]
	plane := shape[2] * shape[3]
	M := float32(N * plane)

	gd := grad.Data()
	hd := cache.XHat.Data()
	gammaData := gamma.Data()

	inputGrad := tensor.ZerosLike(grad)
	gammaGrad := tensor.Zeros(tensor.Shape{C})
	betaGrad := tensor.Zeros(tensor.Shape{C})
	dx := inputGrad.Data()
	dGamma := gammaGrad.Data()
	dBeta := betaGrad.Data()

	parallel.For(C, func(c int) {
		var sumG, sumGX float32
		for n := 0; n < N; n++ {
			off := (n*C + c) * plane
			for i := off; i < off+plane; i++ {
				sumG += gd[i]
				sumGX += gd[i] * hd[i]
			}
		}
		dBeta[c] = sumG
		dGamma[c] = sumGX

		scale := gammaData[c] * cache.InvStd[c]
		for n := 0; n < N; n++ {
			off := (n*C + c) * plane
			for i := off; i < off+plane; i++ {
				if training {
					dx[i] = scale / M * (M*gd[i] - sumG - hd[i]*sumGX)
				} else {
					dx[i] = scale * gd[i]
				}
			}
		}
	}, cpu.par)

	return BatchNormGrads{Input: inputGrad, Gamma: gammaGrad, Beta: betaGrad}
}
