package neuralnet

import "math"

// LossFunction computes a per-sample loss from class probabilities and a target class.
type LossFunction interface {
	Compute(probs []float32, target int) float32
	// Gradient returns ∂L/∂logits when probs came from Softmax.
	Gradient(probs []float32, target int) []float32
}

// CrossEntropy implements categorical cross-entropy loss.
type CrossEntropy struct{}

var _ LossFunction = (*CrossEntropy)(nil)

func (ce *CrossEntropy) Compute(probs []float32, target int) float32 {
	p := probs[target]
	if p < 1e-15 {
		p = 1e-15
	}
	return -float32(math.Log(float64(p)))
}

// Gradient returns probs - onehot(target).
func (ce *CrossEntropy) Gradient(probs []float32, target int) []float32 {
	grad := make([]float32, len(probs))
	copy(grad, probs)
	grad[target] -= 1
	return grad
}

// Softmax turns logits into probabilities. The maximum is subtracted first so large
// logits do not overflow.
func Softmax(logits []float32) []float32 {
	maxVal := logits[0]
	for _, v := range logits[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// SoftmaxCrossEntropy averages cross-entropy over a batch of logits.
type SoftmaxCrossEntropy struct {
	loss CrossEntropy
}

// Compute takes row-major (n, k) logits and n targets in [0, k). It returns the mean
// loss and the gradient of that mean with respect to the logits.
func (s *SoftmaxCrossEntropy) Compute(logits []float32, k int, targets []int) (float64, []float32) {
	n := len(targets)
	grad := make([]float32, n*k)
	var total float64
	for i, t := range targets {
		probs := Softmax(logits[i*k : (i+1)*k])
		total += float64(s.loss.Compute(probs, t))
		for j, g := range s.loss.Gradient(probs, t) {
			grad[i*k+j] = g / float32(n)
		}
	}
	return total / float64(n), grad
}
