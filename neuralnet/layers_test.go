package neuralnet

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
)

func randomSlice(rng *rand.Rand, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(rng.Float64()*2 - 1)
	}
	return s
}

// projected returns f(x) = sum(r * layer(x)) so a layer can be checked with a scalar
// finite difference.
func projected(l Layer, shape []int, r []float32, x []float32) float64 {
	out, _ := l.Forward(x, shape, true)
	var s float64
	for i := range out {
		s += float64(out[i] * r[i])
	}
	return s
}

func checkInputGradient(t *testing.T, l Layer, shape []int, rng *rand.Rand) {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	x := randomSlice(rng, n)
	out, _ := l.Forward(x, shape, true)
	r := randomSlice(rng, len(out))
	ZeroGrad(l.Params())
	analytic := l.Backward(r)

	x64 := make([]float64, n)
	for i, v := range x {
		x64[i] = float64(v)
	}
	numeric := fd.Gradient(nil, func(v []float64) float64 {
		xs := make([]float32, len(v))
		for i := range v {
			xs[i] = float32(v[i])
		}
		return projected(l, shape, r, xs)
	}, x64, &fd.Settings{Formula: fd.Central, Step: 1e-2})

	for i := range numeric {
		if math.Abs(numeric[i]-float64(analytic[i])) > 1e-2 {
			t.Errorf("%s: dx[%d] = %v; finite difference %v", l, i, analytic[i], numeric[i])
		}
	}
}

func checkParamGradient(t *testing.T, l Layer, shape []int, rng *rand.Rand) {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	x := randomSlice(rng, n)
	out, _ := l.Forward(x, shape, true)
	r := randomSlice(rng, len(out))
	ZeroGrad(l.Params())
	l.Backward(r)

	for _, p := range l.Params() {
		if !p.Trainable() {
			continue
		}
		analytic := append([]float32(nil), p.Grad...)
		orig := append([]float32(nil), p.Value...)
		v64 := make([]float64, len(orig))
		for i, v := range orig {
			v64[i] = float64(v)
		}
		numeric := fd.Gradient(nil, func(v []float64) float64 {
			for i := range v {
				p.Value[i] = float32(v[i])
			}
			return projected(l, shape, r, x)
		}, v64, &fd.Settings{Formula: fd.Central, Step: 1e-2})
		copy(p.Value, orig)

		for i := range numeric {
			if math.Abs(numeric[i]-float64(analytic[i])) > 1e-2 {
				t.Errorf("%s: d%s[%d] = %v; finite difference %v", l, p.Name, i, analytic[i], numeric[i])
			}
		}
	}
}

func TestConv2DGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conv := NewConv2D("conv", 2, 3, 3, rng)
	checkInputGradient(t, conv, []int{2, 2, 5, 5}, rng)
	checkParamGradient(t, conv, []int{2, 2, 5, 5}, rng)
}

func TestConv2DKnownOutput(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conv := NewConv2D("conv", 1, 1, 3, rng)
	for i := range conv.weight.Value {
		conv.weight.Value[i] = 1
	}
	conv.bias.Value[0] = 0.5
	x := make([]float32, 16)
	for i := range x {
		x[i] = float32(i)
	}
	out, shape := conv.Forward(x, []int{1, 1, 4, 4}, false)
	if len(shape) != 4 || shape[2] != 2 || shape[3] != 2 {
		t.Fatalf("output shape = %v; want [1 1 2 2]", shape)
	}
	// Window sums of a 4x4 ramp.
	want := []float32{45.5, 54.5, 81.5, 90.5}
	for i := range want {
		if !floatEquals(out[i], want[i], 1e-4) {
			t.Errorf("out[%d] = %v; want %v", i, out[i], want[i])
		}
	}
}

func TestBatchNormGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	bn := NewBatchNorm2D("bn", 2)
	for i := range bn.gamma.Value {
		bn.gamma.Value[i] = 0.5 + float32(i)
		bn.beta.Value[i] = 0.1 * float32(i)
	}
	checkInputGradient(t, bn, []int{3, 2, 2, 2}, rng)
	checkParamGradient(t, bn, []int{3, 2, 2, 2}, rng)
}

func TestBatchNormTrainingNormalizes(t *testing.T) {
	bn := NewBatchNorm2D("bn", 1)
	x := []float32{1, 2, 3, 4}
	out, _ := bn.Forward(x, []int{4, 1, 1, 1}, true)
	var mean, sq float64
	for _, v := range out {
		mean += float64(v)
	}
	mean /= 4
	for _, v := range out {
		sq += (float64(v) - mean) * (float64(v) - mean)
	}
	if math.Abs(mean) > 1e-5 || math.Abs(sq/4-1) > 1e-3 {
		t.Errorf("normalized mean %v, variance %v; want 0 and 1", mean, sq/4)
	}
	// Running stats move 10% toward the batch mean 2.5 and unbiased variance 5/3.
	if !floatEquals(bn.runMean.Value[0], 0.25, 1e-6) {
		t.Errorf("running mean = %v; want 0.25", bn.runMean.Value[0])
	}
	if !floatEquals(bn.runVar.Value[0], float32(0.9+0.1*5.0/3.0), 1e-5) {
		t.Errorf("running var = %v; want %v", bn.runVar.Value[0], 0.9+0.1*5.0/3.0)
	}
}

func TestBatchNormEvalUsesRunningStats(t *testing.T) {
	bn := NewBatchNorm2D("bn", 1)
	bn.runMean.Value[0] = 2
	bn.runVar.Value[0] = 4
	out, _ := bn.Forward([]float32{2, 6}, []int{2, 1, 1, 1}, false)
	if !floatEquals(out[0], 0, 1e-5) || !floatEquals(out[1], 2, 1e-3) {
		t.Errorf("eval output = %v; want [0 2]", out)
	}
	if bn.runMean.Value[0] != 2 {
		t.Errorf("eval mode changed running mean to %v", bn.runMean.Value[0])
	}
}

func TestBatchNormSingleValue(t *testing.T) {
	bn := NewBatchNorm2D("bn", 1)
	out, _ := bn.Forward([]float32{7}, []int{1, 1, 1, 1}, true)
	if math.IsNaN(float64(out[0])) || out[0] != 0 {
		t.Errorf("output = %v; want 0", out[0])
	}
}

func TestGlobalAvgPool(t *testing.T) {
	var p GlobalAvgPool
	out, shape := p.Forward([]float32{1, 2, 3, 4, 10, 10, 10, 10}, []int{1, 2, 2, 2}, true)
	if len(shape) != 2 || shape[0] != 1 || shape[1] != 2 {
		t.Fatalf("shape = %v; want [1 2]", shape)
	}
	if !floatEquals(out[0], 2.5, 1e-6) || !floatEquals(out[1], 10, 1e-6) {
		t.Errorf("out = %v; want [2.5 10]", out)
	}
	dx := p.Backward([]float32{4, 8})
	for i, want := range []float32{1, 1, 1, 1, 2, 2, 2, 2} {
		if dx[i] != want {
			t.Errorf("dx[%d] = %v; want %v", i, dx[i], want)
		}
	}
}

func TestLinearGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	l := NewLinear("fc", 4, 3, rng)
	checkInputGradient(t, l, []int{2, 4}, rng)
	checkParamGradient(t, l, []int{2, 4}, rng)
}

func TestActivationBackward(t *testing.T) {
	a := NewActivation(ReLU{})
	a.Forward([]float32{-1, 2}, []int{1, 2}, true)
	dx := a.Backward([]float32{5, 5})
	if dx[0] != 0 || dx[1] != 5 {
		t.Errorf("dx = %v; want [0 5]", dx)
	}
}
