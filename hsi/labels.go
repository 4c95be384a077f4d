package hsi

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Background marks unlabeled pixels.
const Background = 0

// LabelMap is a row-major height x width class raster; 0 is background, 1..K are classes.
type LabelMap struct {
	Height int
	Width  int
	Data   []int
}

// ClassMap is a predicted class raster laid out like the label map.
type ClassMap = LabelMap

func NewLabelMap(height, width int, data []int) (*LabelMap, error) {
	if height <= 0 || width <= 0 {
		return nil, errors.Wrapf(ErrDataShapeMismatch, "label dims must be positive, got %dx%d", height, width)
	}
	if len(data) != height*width {
		return nil, errors.Wrapf(ErrDataShapeMismatch, "expected %d labels, got %d", height*width, len(data))
	}
	for i, v := range data {
		if v < 0 {
			return nil, errors.Wrapf(ErrDataShapeMismatch, "negative label %d at index %d", v, i)
		}
	}
	return &LabelMap{Height: height, Width: width, Data: data}, nil
}

func (l *LabelMap) At(row, col int) int { return l.Data[row*l.Width+col] }

// NumClasses returns the largest class value present.
func (l *LabelMap) NumClasses() int {
	k := 0
	for _, v := range l.Data {
		if v > k {
			k = v
		}
	}
	return k
}

// Dense copies the raster into an int64 tensor of shape (height, width). The backing
// is fixed-size so the tensor can be written as .npy.
func (l *LabelMap) Dense() *tensor.Dense {
	backing := make([]int64, len(l.Data))
	for i, v := range l.Data {
		backing[i] = int64(v)
	}
	return tensor.New(tensor.WithShape(l.Height, l.Width), tensor.WithBacking(backing))
}

func (l *LabelMap) sameShape(height, width int) bool {
	return l.Height == height && l.Width == width
}

// Coord is a pixel position.
type Coord struct {
	Row int
	Col int
}

// Mask marks the pixels that belong to a split.
type Mask struct {
	Height int
	Width  int
	Data   []bool
}

func NewMask(height, width int) *Mask {
	return &Mask{Height: height, Width: width, Data: make([]bool, height*width)}
}

// Ones selects every pixel.
func Ones(height, width int) *Mask {
	m := NewMask(height, width)
	for i := range m.Data {
		m.Data[i] = true
	}
	return m
}

func (m *Mask) At(row, col int) bool { return m.Data[row*m.Width+col] }

func (m *Mask) Set(c Coord) { m.Data[c.Row*m.Width+c.Col] = true }

func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Coords lists the selected pixels in row-major order.
func (m *Mask) Coords() []Coord {
	coords := make([]Coord, 0, m.Count())
	for i, v := range m.Data {
		if v {
			coords = append(coords, Coord{Row: i / m.Width, Col: i % m.Width})
		}
	}
	return coords
}
