package neuralnet

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

var ErrInvalidArchitecture = errors.New("invalid architecture")

// Classifier maps a batch of patches (N, C, P, P) to class logits (N, K).
type Classifier interface {
	Forward(x *tensor.Dense) (*tensor.Dense, error)
}

// Model is a Classifier that can be trained.
type Model interface {
	Classifier
	// Backward propagates dL/dlogits of the last Forward and accumulates gradients.
	Backward(grad *tensor.Dense) error
	Params() []*Param
	SetTraining(training bool)
	NumClasses() int
}

// Architecture describes the two-block convolutional classifier.
type Architecture struct {
	InChannels int
	PatchSize  int
	NumClasses int
	Conv1      int
	Conv2      int
	Hidden     int
	Kernel     int
	Activation ActivationFunction
}

func DefaultArchitecture(inChannels, patchSize, numClasses int) Architecture {
	return Architecture{
		InChannels: inChannels,
		PatchSize:  patchSize,
		NumClasses: numClasses,
		Conv1:      128,
		Conv2:      256,
		Hidden:     512,
		Kernel:     3,
		Activation: ReLU{},
	}
}

// Validate checks that every width is positive and the patch survives both convolutions.
func (a Architecture) Validate() error {
	if a.InChannels < 1 || a.NumClasses < 1 {
		return errors.Wrapf(ErrInvalidArchitecture, "in channels %d, classes %d", a.InChannels, a.NumClasses)
	}
	if a.Conv1 < 1 || a.Conv2 < 1 || a.Hidden < 1 || a.Kernel < 1 {
		return errors.Wrapf(ErrInvalidArchitecture, "widths %d/%d/%d, kernel %d", a.Conv1, a.Conv2, a.Hidden, a.Kernel)
	}
	if out := a.PatchSize - 2*(a.Kernel-1); out < 1 {
		return errors.Wrapf(ErrInvalidArchitecture, "patch size %d leaves spatial size %d after two convolutions", a.PatchSize, out)
	}
	return nil
}

// SimpleCNN is conv-bn-act twice, global average pooling, then a two-layer head.
type SimpleCNN struct {
	arch     Architecture
	layers   []Layer
	training bool
	lastN    int
}

// NewSimpleCNN builds the default widths.
func NewSimpleCNN(inChannels, patchSize, numClasses int, rng *rand.Rand) (*SimpleCNN, error) {
	return NewCNN(DefaultArchitecture(inChannels, patchSize, numClasses), rng)
}

func NewCNN(arch Architecture, rng *rand.Rand) (*SimpleCNN, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.Wrap(ErrInvalidArchitecture, "nil random source")
	}
	if arch.Activation == nil {
		arch.Activation = ReLU{}
	}
	layers := []Layer{
		NewConv2D("conv1", arch.InChannels, arch.Conv1, arch.Kernel, rng),
		NewBatchNorm2D("bn1", arch.Conv1),
		NewActivation(arch.Activation),
		NewConv2D("conv2", arch.Conv1, arch.Conv2, arch.Kernel, rng),
		NewBatchNorm2D("bn2", arch.Conv2),
		NewActivation(arch.Activation),
		&GlobalAvgPool{},
		NewLinear("fc1", arch.Conv2, arch.Hidden, rng),
		NewActivation(arch.Activation),
		NewLinear("fc2", arch.Hidden, arch.NumClasses, rng),
	}
	return &SimpleCNN{arch: arch, layers: layers, training: true}, nil
}

func (m *SimpleCNN) NumClasses() int { return m.arch.NumClasses }

func (m *SimpleCNN) SetTraining(training bool) { m.training = training }

func (m *SimpleCNN) Training() bool { return m.training }

func (m *SimpleCNN) Params() []*Param {
	var params []*Param
	for _, l := range m.layers {
		params = append(params, l.Params()...)
	}
	return params
}

func (m *SimpleCNN) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	shape := x.Shape()
	if x.Dims() != 4 || shape[1] != m.arch.InChannels || shape[2] != m.arch.PatchSize || shape[3] != m.arch.PatchSize {
		return nil, errors.Errorf("input shape %v, want (N, %d, %d, %d)", shape, m.arch.InChannels, m.arch.PatchSize, m.arch.PatchSize)
	}
	data, ok := x.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("input dtype %v, want float32", x.Dtype())
	}
	cur := []int(shape.Clone())
	out := data
	for _, l := range m.layers {
		out, cur = l.Forward(out, cur, m.training)
	}
	m.lastN = shape[0]
	return tensor.New(tensor.WithShape(cur...), tensor.WithBacking(out)), nil
}

func (m *SimpleCNN) Backward(grad *tensor.Dense) error {
	if !m.training {
		return errors.New("backward called in evaluation mode")
	}
	shape := grad.Shape()
	if grad.Dims() != 2 || shape[0] != m.lastN || shape[1] != m.arch.NumClasses {
		return errors.Errorf("gradient shape %v, want (%d, %d)", shape, m.lastN, m.arch.NumClasses)
	}
	g, ok := grad.Data().([]float32)
	if !ok {
		return errors.Errorf("gradient dtype %v, want float32", grad.Dtype())
	}
	for i := len(m.layers) - 1; i >= 0; i-- {
		g = m.layers[i].Backward(g)
	}
	return nil
}

func (m *SimpleCNN) String() string {
	var b strings.Builder
	b.WriteString("SimpleCNN(\n")
	for i, l := range m.layers {
		fmt.Fprintf(&b, "  (%d): %s\n", i, l)
	}
	b.WriteString(")")
	return b.String()
}
