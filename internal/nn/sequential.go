package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/tumorclf/internal/tensor"
)

// Sequential is a container that chains modules.
//
// Forward runs the modules in order, Backward in reverse order.
type Sequential struct {
	modules []Module
}

// NewSequential creates a new Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Add appends a module to the end of the container.
func (s *Sequential) Add(m Module) {
	s.modules = append(s.modules, m)
}

// Forward passes the input through all modules sequentially.
func (s *Sequential) Forward(input *tensor.Tensor) *tensor.Tensor {
	x := input
	for _, m := range s.modules {
		x = m.Forward(x)
	}
	return x
}

// Backward propagates grad through all modules in reverse order.
func (s *Sequential) Backward(grad *tensor.Tensor) *tensor.Tensor {
	g := grad
	for i := len(s.modules) - 1; i >= 0; i-- {
		g = s.modules[i].Backward(g)
	}
	return g
}

// Parameters returns all parameters from all modules.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// SetTraining propagates the mode to every child.
func (s *Sequential) SetTraining(training bool) {
	for _, m := range s.modules {
		SetTraining(m, training)
	}
}

// Modules returns the contained modules.
func (s *Sequential) Modules() []Module {
	return s.modules
}

// Len returns the number of modules.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// StateDict returns every parameter and buffer keyed by "<index>.<name>".
//
// The returned tensors alias the live module state.
func (s *Sequential) StateDict() map[string]*tensor.Tensor {
	state := make(map[string]*tensor.Tensor)
	for i, m := range s.modules {
		prefix := fmt.Sprintf("%d.", i)
		if sub, ok := m.(*Sequential); ok {
			for k, v := range sub.StateDict() {
				state[prefix+k] = v
			}
			continue
		}
		for _, p := range m.Parameters() {
			state[prefix+p.Name()] = p.Tensor()
		}
		if b, ok := m.(BufferHolder); ok {
			for k, v := range b.Buffers() {
				state[prefix+k] = v
			}
		}
	}
	return state
}

// String returns one line per module.
func (s *Sequential) String() string {
	var sb strings.Builder
	sb.WriteString("Sequential(\n")
	for i, m := range s.modules {
		fmt.Fprintf(&sb, "  (%d): %v\n", i, m)
	}
	sb.WriteString(")")
	return sb.String()
}
