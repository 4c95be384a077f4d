package neuralnet

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// Param is a named tensor of model state. Buffers such as running statistics
// carry no gradient and are skipped by optimizers.
type Param struct {
	Name  string
	Shape []int
	Value []float32
	Grad  []float32
}

func newParam(name string, shape ...int) *Param {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Param{
		Name:  name,
		Shape: append([]int(nil), shape...),
		Value: make([]float32, n),
		Grad:  make([]float32, n),
	}
}

func newBuffer(name string, shape ...int) *Param {
	p := newParam(name, shape...)
	p.Grad = nil
	return p
}

func (p *Param) Trainable() bool { return p.Grad != nil }

// ZeroGrad clears the gradients of every trainable parameter.
func ZeroGrad(params []*Param) {
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// SavedTensor is a detached copy of one parameter.
type SavedTensor struct {
	Shape []int
	Data  []float32
}

// Snapshot is a deep copy of model state keyed by parameter name.
type Snapshot map[string]SavedTensor

// TakeSnapshot copies the values of params.
func TakeSnapshot(params []*Param) Snapshot {
	s := make(Snapshot, len(params))
	for _, p := range params {
		s[p.Name] = SavedTensor{
			Shape: append([]int(nil), p.Shape...),
			Data:  append([]float32(nil), p.Value...),
		}
	}
	return s
}

// Restore copies the snapshot back into params. Every parameter must be present
// with a matching shape.
func (s Snapshot) Restore(params []*Param) error {
	for _, p := range params {
		saved, ok := s[p.Name]
		if !ok {
			return errors.Errorf("snapshot has no parameter %q", p.Name)
		}
		if !sameShape(saved.Shape, p.Shape) || len(saved.Data) != len(p.Value) {
			return errors.Errorf("parameter %q: snapshot shape %v, model shape %v", p.Name, saved.Shape, p.Shape)
		}
		copy(p.Value, saved.Data)
	}
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func xavierInit(rng *rand.Rand, numInputs int, numOutputs int) float32 {
	limit := math.Sqrt(6.0 / float64(numInputs+numOutputs))
	return float32(2*rng.Float64()*limit - limit)
}

// uniformInit draws from U(-1/sqrt(fanIn), 1/sqrt(fanIn)).
func uniformInit(rng *rand.Rand, fanIn int) float32 {
	limit := 1 / math.Sqrt(float64(fanIn))
	return float32(2*rng.Float64()*limit - limit)
}
