package hsi

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// Cube is a bands x height x width hyperspectral image.
type Cube struct {
	t      *tensor.Dense
	data   []float32
	bands  int
	height int
	width  int
}

// NewCube wraps a float32 tensor of shape (bands, height, width).
func NewCube(t *tensor.Dense) (*Cube, error) {
	if t == nil {
		return nil, errors.Wrap(ErrDataShapeMismatch, "nil cube tensor")
	}
	if t.Dims() != 3 {
		return nil, errors.Wrapf(ErrDataShapeMismatch, "cube must have 3 dims, got shape %v", t.Shape())
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Wrapf(ErrDataShapeMismatch, "cube must be float32, got %v", t.Dtype())
	}
	s := t.Shape()
	if len(data) != s[0]*s[1]*s[2] {
		return nil, errors.Wrapf(ErrDataShapeMismatch, "cube backing has %d values for shape %v", len(data), s)
	}
	return &Cube{t: t, data: data, bands: s[0], height: s[1], width: s[2]}, nil
}

// NewCubeFromData builds a cube over a row-major (band, row, col) slice.
func NewCubeFromData(bands, height, width int, data []float32) (*Cube, error) {
	if bands <= 0 || height <= 0 || width <= 0 {
		return nil, errors.Wrapf(ErrDataShapeMismatch, "cube dims must be positive, got %dx%dx%d", bands, height, width)
	}
	if len(data) != bands*height*width {
		return nil, errors.Wrapf(ErrDataShapeMismatch, "expected %d values, got %d", bands*height*width, len(data))
	}
	t := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(bands, height, width), tensor.WithBacking(data))
	return NewCube(t)
}

func (c *Cube) Bands() int  { return c.bands }
func (c *Cube) Height() int { return c.height }
func (c *Cube) Width() int  { return c.width }

// Dense returns the backing tensor.
func (c *Cube) Dense() *tensor.Dense { return c.t }

func (c *Cube) At(b, row, col int) float32 {
	return c.data[(b*c.height+row)*c.width+col]
}

// band returns the row-major pixels of band b without copying.
func (c *Cube) band(b int) []float32 {
	n := c.height * c.width
	return c.data[b*n : (b+1)*n]
}

func (c *Cube) String() string {
	return fmt.Sprintf("Cube(%d bands, %dx%d)", c.bands, c.height, c.width)
}

// Normalize scales every band independently to [0,1]. A constant band becomes zero.
func Normalize(c *Cube) *Cube {
	n := c.height * c.width
	out := make([]float32, len(c.data))
	vals := make([]float64, n)
	for b := 0; b < c.bands; b++ {
		band := c.band(b)
		for i, v := range band {
			vals[i] = float64(v)
		}
		lo, hi := floats.Min(vals), floats.Max(vals)
		dst := out[b*n : (b+1)*n]
		if hi == lo {
			continue
		}
		scale := hi - lo
		for i, v := range vals {
			dst[i] = float32((v - lo) / scale)
		}
	}
	t := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(c.bands, c.height, c.width), tensor.WithBacking(out))
	return &Cube{t: t, data: out, bands: c.bands, height: c.height, width: c.width}
}
