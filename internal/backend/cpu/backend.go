// Package cpu implements the tensor kernels used by the network on the CPU.
//
// Kernels take and return *tensor.Tensor in NCHW layout. Shape violations are
// programmer errors and panic with a descriptive message.
package cpu

import (
	"github.com/born-ml/tumorclf/internal/parallel"
)

// CPUBackend executes kernels on the host, splitting batch work across goroutines.
type CPUBackend struct {
	par parallel.Config
}

// New creates a new CPU backend using all available cores.
func New() *CPUBackend {
	return &CPUBackend{
		par: parallel.DefaultConfig(),
	}
}

// NewWithConfig creates a CPU backend with an explicit parallel configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{par: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Workers returns the number of goroutines used by batch kernels.
func (cpu *CPUBackend) Workers() int {
	if !cpu.par.Enabled {
		return 1
	}
	return cpu.par.NumWorkers
}
