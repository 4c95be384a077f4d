package neuralnet

import (
	"math"

	"github.com/pkg/errors"
)

// Optimizer applies the accumulated gradients of one batch to the parameters.
type Optimizer interface {
	Step(params []*Param) error
}

// SGD implements stochastic gradient descent with momentum and L2 regularization.
type SGD struct {
	LearningRate   float32
	Momentum       float32
	Regularization float32

	velocities map[*Param][]float32
}

func NewSGD(lr, momentum, l2 float32) *SGD {
	return &SGD{LearningRate: lr, Momentum: momentum, Regularization: l2}
}

func (o *SGD) Step(params []*Param) error {
	if o.LearningRate <= 0 {
		return errors.New("invalid learning rate")
	}
	if o.velocities == nil {
		o.velocities = make(map[*Param][]float32)
	}
	for _, p := range params {
		if !p.Trainable() {
			continue
		}
		v, ok := o.velocities[p]
		if !ok {
			v = make([]float32, len(p.Value))
			o.velocities[p] = v
		}
		for i := range p.Value {
			g := p.Grad[i] + o.Regularization*p.Value[i]
			v[i] = o.Momentum*v[i] - o.LearningRate*g
			p.Value[i] += v[i]
		}
	}
	return nil
}

type AdamConfig struct {
	LearningRate float32
	Beta1        float32
	Beta2        float32
	Epsilon      float32
	WeightDecay  float32
}

func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0,
	}
}

// Adam keeps bias-corrected first and second moment estimates per parameter.
type Adam struct {
	config AdamConfig
	step   int
	m, v   map[*Param][]float32
}

func NewAdam(config AdamConfig) *Adam {
	return &Adam{
		config: config,
		m:      make(map[*Param][]float32),
		v:      make(map[*Param][]float32),
	}
}

func (a *Adam) Step(params []*Param) error {
	c := a.config
	if c.LearningRate <= 0 {
		return errors.New("invalid learning rate")
	}
	a.step++
	bc1 := 1 - math.Pow(float64(c.Beta1), float64(a.step))
	bc2 := 1 - math.Pow(float64(c.Beta2), float64(a.step))
	for _, p := range params {
		if !p.Trainable() {
			continue
		}
		m, ok := a.m[p]
		if !ok {
			m = make([]float32, len(p.Value))
			a.m[p] = m
			a.v[p] = make([]float32, len(p.Value))
		}
		v := a.v[p]
		for i := range p.Value {
			g := p.Grad[i] + c.WeightDecay*p.Value[i]
			m[i] = c.Beta1*m[i] + (1-c.Beta1)*g
			v[i] = c.Beta2*v[i] + (1-c.Beta2)*g*g
			mHat := float64(m[i]) / bc1
			vHat := float64(v[i]) / bc2
			p.Value[i] -= float32(float64(c.LearningRate) * mHat / (math.Sqrt(vHat) + float64(c.Epsilon)))
		}
	}
	return nil
}
