package neuralnet

import "math"

// ActivationFunction is an element-wise nonlinearity and its derivative.
type ActivationFunction interface {
	Activate(x float32) float32
	Derivative(x float32) float32
}

// ReLU is max(x, 0).
type ReLU struct{}

func (r ReLU) Activate(x float32) float32 {
	return float32(math.Max(float64(x), 0))
}

func (r ReLU) Derivative(x float32) float32 {
	if x > 0 {
		return 1
	}
	return 0
}

// LeakyReLU scales negative inputs by alpha.
type LeakyReLU struct {
	alpha float32
}

// NewLeakyReLU returns a LeakyReLU with the given negative slope.
func NewLeakyReLU(alpha float32) LeakyReLU {
	return LeakyReLU{alpha: alpha}
}

func (l LeakyReLU) Activate(x float32) float32 {
	if x > 0 {
		return x
	}
	return l.alpha * x
}

func (l LeakyReLU) Derivative(x float32) float32 {
	if x > 0 {
		return 1
	}
	return l.alpha
}

// activationName is used by layer summaries.
func activationName(a ActivationFunction) string {
	switch a.(type) {
	case ReLU:
		return "ReLU"
	case LeakyReLU:
		return "LeakyReLU"
	default:
		return "Activation"
	}
}
