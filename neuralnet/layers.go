package neuralnet

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Layer is one stage of a feed-forward stack. Shapes are (N, C, H, W) for maps and
// (N, F) for feature vectors; data is row-major.
type Layer interface {
	Forward(x []float32, shape []int, training bool) ([]float32, []int)
	// Backward takes dL/d(output) of the last Forward and returns dL/d(input),
	// accumulating parameter gradients.
	Backward(grad []float32) []float32
	Params() []*Param
	String() string
}

func toFloat64(dst []float64, src []float32) []float64 {
	if cap(dst) < len(src) {
		dst = make([]float64, len(src))
	}
	dst = dst[:len(src)]
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}

// Conv2D is a square-kernel, stride 1 convolution without padding.
type Conv2D struct {
	in, out, kernel int
	weight, bias    *Param

	input   []float32
	inShape []int
}

func NewConv2D(name string, in, out, kernel int, rng *rand.Rand) *Conv2D {
	c := &Conv2D{
		in:     in,
		out:    out,
		kernel: kernel,
		weight: newParam(name+".weight", out, in, kernel, kernel),
		bias:   newParam(name+".bias", out),
	}
	fanIn := in * kernel * kernel
	for i := range c.weight.Value {
		c.weight.Value[i] = xavierInit(rng, fanIn, out*kernel*kernel)
	}
	for i := range c.bias.Value {
		c.bias.Value[i] = uniformInit(rng, fanIn)
	}
	return c
}

// OutputSize returns the spatial size produced from a size x size input.
func (c *Conv2D) OutputSize(size int) int { return size - c.kernel + 1 }

// im2col lays out the receptive fields of one sample as a (C*k*k, OH*OW) matrix.
func (c *Conv2D) im2col(x []float32, h, w int) *mat.Dense {
	k := c.kernel
	oh, ow := h-k+1, w-k+1
	cols := mat.NewDense(c.in*k*k, oh*ow, nil)
	raw := cols.RawMatrix()
	for ch := 0; ch < c.in; ch++ {
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := raw.Data[((ch*k+ky)*k+kx)*raw.Stride:]
				for oy := 0; oy < oh; oy++ {
					src := x[(ch*h+oy+ky)*w+kx:]
					for ox := 0; ox < ow; ox++ {
						row[oy*ow+ox] = float64(src[ox])
					}
				}
			}
		}
	}
	return cols
}

func (c *Conv2D) weightMatrix() *mat.Dense {
	return mat.NewDense(c.out, c.in*c.kernel*c.kernel, toFloat64(nil, c.weight.Value))
}

func (c *Conv2D) Forward(x []float32, shape []int, training bool) ([]float32, []int) {
	n, h, w := shape[0], shape[2], shape[3]
	oh, ow := c.OutputSize(h), c.OutputSize(w)
	c.input = x
	c.inShape = append(c.inShape[:0], shape...)

	weights := c.weightMatrix()
	out := make([]float32, n*c.out*oh*ow)
	var prod mat.Dense
	sampleIn, sampleOut := c.in*h*w, c.out*oh*ow
	for s := 0; s < n; s++ {
		prod.Reset()
		prod.Mul(weights, c.im2col(x[s*sampleIn:(s+1)*sampleIn], h, w))
		dst := out[s*sampleOut : (s+1)*sampleOut]
		for o := 0; o < c.out; o++ {
			b := c.bias.Value[o]
			for i := 0; i < oh*ow; i++ {
				dst[o*oh*ow+i] = float32(prod.At(o, i)) + b
			}
		}
	}
	return out, []int{n, c.out, oh, ow}
}

func (c *Conv2D) Backward(grad []float32) []float32 {
	n, h, w := c.inShape[0], c.inShape[2], c.inShape[3]
	k := c.kernel
	oh, ow := c.OutputSize(h), c.OutputSize(w)
	sampleIn, sampleOut := c.in*h*w, c.out*oh*ow

	weights := c.weightMatrix()
	dW := mat.NewDense(c.out, c.in*k*k, nil)
	dx := make([]float32, len(c.input))
	var partial, dcols mat.Dense
	for s := 0; s < n; s++ {
		g := mat.NewDense(c.out, oh*ow, toFloat64(nil, grad[s*sampleOut:(s+1)*sampleOut]))
		cols := c.im2col(c.input[s*sampleIn:(s+1)*sampleIn], h, w)

		partial.Reset()
		partial.Mul(g, cols.T())
		dW.Add(dW, &partial)
		for o := 0; o < c.out; o++ {
			c.bias.Grad[o] += float32(sumRow(g, o))
		}

		dcols.Reset()
		dcols.Mul(weights.T(), g)
		// col2im
		dst := dx[s*sampleIn : (s+1)*sampleIn]
		for ch := 0; ch < c.in; ch++ {
			for ky := 0; ky < k; ky++ {
				for kx := 0; kx < k; kx++ {
					r := (ch*k+ky)*k + kx
					for oy := 0; oy < oh; oy++ {
						for ox := 0; ox < ow; ox++ {
							dst[(ch*h+oy+ky)*w+ox+kx] += float32(dcols.At(r, oy*ow+ox))
						}
					}
				}
			}
		}
	}
	raw := dW.RawMatrix()
	for o := 0; o < c.out; o++ {
		for j := 0; j < c.in*k*k; j++ {
			c.weight.Grad[o*c.in*k*k+j] += float32(raw.Data[o*raw.Stride+j])
		}
	}
	return dx
}

func sumRow(m *mat.Dense, row int) float64 {
	_, cols := m.Dims()
	var s float64
	for j := 0; j < cols; j++ {
		s += m.At(row, j)
	}
	return s
}

func (c *Conv2D) Params() []*Param { return []*Param{c.weight, c.bias} }

func (c *Conv2D) String() string {
	return fmt.Sprintf("Conv2D(%d, %d, kernel_size=%d, stride=1)", c.in, c.out, c.kernel)
}

// BatchNorm2D normalizes every channel over the batch and spatial positions.
// Training mode uses batch statistics and updates the running estimates; eval mode
// uses the running estimates only.
type BatchNorm2D struct {
	channels    int
	eps         float64
	momentum    float64
	gamma, beta *Param
	runMean     *Param
	runVar      *Param

	shape  []int
	xhat   []float64
	invStd []float64
}

func NewBatchNorm2D(name string, channels int) *BatchNorm2D {
	bn := &BatchNorm2D{
		channels: channels,
		eps:      1e-5,
		momentum: 0.1,
		gamma:    newParam(name+".weight", channels),
		beta:     newParam(name+".bias", channels),
		runMean:  newBuffer(name+".running_mean", channels),
		runVar:   newBuffer(name+".running_var", channels),
	}
	for i := 0; i < channels; i++ {
		bn.gamma.Value[i] = 1
		bn.runVar.Value[i] = 1
	}
	return bn
}

func (bn *BatchNorm2D) channelValues(x []float32, n, spatial, ch int, dst []float64) []float64 {
	dst = dst[:0]
	for s := 0; s < n; s++ {
		for _, v := range x[(s*bn.channels+ch)*spatial : (s*bn.channels+ch+1)*spatial] {
			dst = append(dst, float64(v))
		}
	}
	return dst
}

func (bn *BatchNorm2D) Forward(x []float32, shape []int, training bool) ([]float32, []int) {
	n, spatial := shape[0], shape[2]*shape[3]
	bn.shape = append(bn.shape[:0], shape...)
	out := make([]float32, len(x))
	if training {
		if cap(bn.xhat) < len(x) {
			bn.xhat = make([]float64, len(x))
		}
		bn.xhat = bn.xhat[:len(x)]
		bn.invStd = make([]float64, bn.channels)
	}

	vals := make([]float64, 0, n*spatial)
	for ch := 0; ch < bn.channels; ch++ {
		var mean, variance float64
		if training {
			vals = bn.channelValues(x, n, spatial, ch, vals)
			count := float64(len(vals))
			unbiased := 0.0
			if len(vals) > 1 {
				mean, unbiased = stat.MeanVariance(vals, nil)
				variance = unbiased * (count - 1) / count
			} else {
				mean = stat.Mean(vals, nil)
			}
			bn.runMean.Value[ch] = float32((1-bn.momentum)*float64(bn.runMean.Value[ch]) + bn.momentum*mean)
			bn.runVar.Value[ch] = float32((1-bn.momentum)*float64(bn.runVar.Value[ch]) + bn.momentum*unbiased)
		} else {
			mean, variance = float64(bn.runMean.Value[ch]), float64(bn.runVar.Value[ch])
		}

		inv := 1 / math.Sqrt(variance+bn.eps)
		g, b := float64(bn.gamma.Value[ch]), float64(bn.beta.Value[ch])
		for s := 0; s < n; s++ {
			base := (s*bn.channels + ch) * spatial
			for i := base; i < base+spatial; i++ {
				xh := (float64(x[i]) - mean) * inv
				if training {
					bn.xhat[i] = xh
				}
				out[i] = float32(g*xh + b)
			}
		}
		if training {
			bn.invStd[ch] = inv
		}
	}
	return out, shape
}

// Backward assumes the preceding Forward ran in training mode.
func (bn *BatchNorm2D) Backward(grad []float32) []float32 {
	n, spatial := bn.shape[0], bn.shape[2]*bn.shape[3]
	count := float64(n * spatial)
	dx := make([]float32, len(grad))
	for ch := 0; ch < bn.channels; ch++ {
		var sumG, sumGX float64
		for s := 0; s < n; s++ {
			base := (s*bn.channels + ch) * spatial
			for i := base; i < base+spatial; i++ {
				g := float64(grad[i])
				sumG += g
				sumGX += g * bn.xhat[i]
			}
		}
		bn.beta.Grad[ch] += float32(sumG)
		bn.gamma.Grad[ch] += float32(sumGX)

		scale := float64(bn.gamma.Value[ch]) * bn.invStd[ch] / count
		for s := 0; s < n; s++ {
			base := (s*bn.channels + ch) * spatial
			for i := base; i < base+spatial; i++ {
				dx[i] = float32(scale * (count*float64(grad[i]) - sumG - bn.xhat[i]*sumGX))
			}
		}
	}
	return dx
}

func (bn *BatchNorm2D) Params() []*Param {
	return []*Param{bn.gamma, bn.beta, bn.runMean, bn.runVar}
}

func (bn *BatchNorm2D) String() string {
	return fmt.Sprintf("BatchNorm2d(%d, eps=%g, momentum=%g)", bn.channels, bn.eps, bn.momentum)
}

// Activation applies an element-wise function.
type Activation struct {
	fn    ActivationFunction
	input []float32
}

func NewActivation(fn ActivationFunction) *Activation { return &Activation{fn: fn} }

func (a *Activation) Forward(x []float32, shape []int, training bool) ([]float32, []int) {
	a.input = x
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = a.fn.Activate(v)
	}
	return out, shape
}

func (a *Activation) Backward(grad []float32) []float32 {
	dx := make([]float32, len(grad))
	for i, g := range grad {
		dx[i] = g * a.fn.Derivative(a.input[i])
	}
	return dx
}

func (a *Activation) Params() []*Param { return nil }

func (a *Activation) String() string { return activationName(a.fn) + "()" }

// GlobalAvgPool averages every channel map to one value: (N,C,H,W) -> (N,C).
type GlobalAvgPool struct {
	shape []int
}

func (p *GlobalAvgPool) Forward(x []float32, shape []int, training bool) ([]float32, []int) {
	p.shape = append(p.shape[:0], shape...)
	n, c, spatial := shape[0], shape[1], shape[2]*shape[3]
	out := make([]float32, n*c)
	for i := range out {
		var sum float64
		for _, v := range x[i*spatial : (i+1)*spatial] {
			sum += float64(v)
		}
		out[i] = float32(sum / float64(spatial))
	}
	return out, []int{n, c}
}

func (p *GlobalAvgPool) Backward(grad []float32) []float32 {
	spatial := p.shape[2] * p.shape[3]
	dx := make([]float32, len(grad)*spatial)
	for i, g := range grad {
		v := g / float32(spatial)
		for j := i * spatial; j < (i+1)*spatial; j++ {
			dx[j] = v
		}
	}
	return dx
}

func (p *GlobalAvgPool) Params() []*Param { return nil }

func (p *GlobalAvgPool) String() string { return "AdaptiveAvgPool2d(output_size=1)" }

// Linear is a fully connected layer y = x W^T + b.
type Linear struct {
	in, out      int
	weight, bias *Param
	input        *mat.Dense
}

func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		in:     in,
		out:    out,
		weight: newParam(name+".weight", out, in),
		bias:   newParam(name+".bias", out),
	}
	for i := range l.weight.Value {
		l.weight.Value[i] = xavierInit(rng, in, out)
	}
	for i := range l.bias.Value {
		l.bias.Value[i] = uniformInit(rng, in)
	}
	return l
}

func (l *Linear) Forward(x []float32, shape []int, training bool) ([]float32, []int) {
	n := shape[0]
	l.input = mat.NewDense(n, l.in, toFloat64(nil, x))
	weights := mat.NewDense(l.out, l.in, toFloat64(nil, l.weight.Value))

	var y mat.Dense
	y.Mul(l.input, weights.T())
	out := make([]float32, n*l.out)
	for s := 0; s < n; s++ {
		for j := 0; j < l.out; j++ {
			out[s*l.out+j] = float32(y.At(s, j)) + l.bias.Value[j]
		}
	}
	return out, []int{n, l.out}
}

func (l *Linear) Backward(grad []float32) []float32 {
	n, _ := l.input.Dims()
	g := mat.NewDense(n, l.out, toFloat64(nil, grad))
	weights := mat.NewDense(l.out, l.in, toFloat64(nil, l.weight.Value))

	var dW, dx mat.Dense
	dW.Mul(g.T(), l.input)
	for j := 0; j < l.out; j++ {
		for k := 0; k < l.in; k++ {
			l.weight.Grad[j*l.in+k] += float32(dW.At(j, k))
		}
	}
	for s := 0; s < n; s++ {
		for j := 0; j < l.out; j++ {
			l.bias.Grad[j] += grad[s*l.out+j]
		}
	}

	dx.Mul(g, weights)
	out := make([]float32, n*l.in)
	for s := 0; s < n; s++ {
		for k := 0; k < l.in; k++ {
			out[s*l.in+k] = float32(dx.At(s, k))
		}
	}
	return out
}

func (l *Linear) Params() []*Param { return []*Param{l.weight, l.bias} }

func (l *Linear) String() string {
	return fmt.Sprintf("Linear(in_features=%d, out_features=%d, bias=True)", l.in, l.out)
}
