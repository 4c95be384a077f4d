package hsi

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Samples is a set of patches in emission order.
type Samples struct {
	// Data holds N patches of Bands x Size x Size values back to back.
	Data  []float32
	Bands int
	Size  int
	// Targets are zero-indexed classes; nil for ExtractAll.
	Targets []int
	// Truth holds the original 1-indexed labels; nil for ExtractAll.
	Truth  []int
	Coords []Coord
}

func (s *Samples) Len() int { return len(s.Coords) }

func (s *Samples) patchLen() int { return s.Bands * s.Size * s.Size }

// Patch returns the i-th patch without copying.
func (s *Samples) Patch(i int) []float32 {
	n := s.patchLen()
	return s.Data[i*n : (i+1)*n]
}

// Dense returns the patches as a (N, bands, size, size) tensor sharing Data.
func (s *Samples) Dense() (*tensor.Dense, error) {
	if s.Len() == 0 {
		return nil, errors.Wrap(ErrDataShapeMismatch, "no samples")
	}
	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(s.Len(), s.Bands, s.Size, s.Size), tensor.WithBacking(s.Data)), nil
}

// ValidatePatchSize requires a positive odd window.
func ValidatePatchSize(patchSize int) error {
	if patchSize <= 0 {
		return errors.Wrapf(ErrInvalidPatchSize, "patch size must be positive, got %d", patchSize)
	}
	if patchSize%2 == 0 {
		return errors.Wrapf(ErrInvalidPatchSize, "patch size must be odd, got %d", patchSize)
	}
	return nil
}

// reflectIndex mirrors i into [0,n) without repeating the edge sample.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// PadReflect pads both spatial borders of the cube by width with mirrored content.
func PadReflect(c *Cube, width int) *Cube {
	h, w := c.height+2*width, c.width+2*width
	out := make([]float32, c.bands*h*w)
	for b := 0; b < c.bands; b++ {
		for row := 0; row < h; row++ {
			src := reflectIndex(row-width, c.height)
			dst := out[(b*h+row)*w : (b*h+row+1)*w]
			for col := range dst {
				dst[col] = c.At(b, src, reflectIndex(col-width, c.width))
			}
		}
	}
	t := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(c.bands, h, w), tensor.WithBacking(out))
	return &Cube{t: t, data: out, bands: c.bands, height: h, width: w}
}

// PadConstant pads both spatial borders of the label map by width with value.
func PadConstant(l *LabelMap, width, value int) *LabelMap {
	h, w := l.Height+2*width, l.Width+2*width
	out := &LabelMap{Height: h, Width: w, Data: make([]int, h*w)}
	for i := range out.Data {
		out.Data[i] = value
	}
	for row := 0; row < l.Height; row++ {
		copy(out.Data[(row+width)*w+width:], l.Data[row*l.Width:(row+1)*l.Width])
	}
	return out
}

func padMask(m *Mask, width int) *Mask {
	out := NewMask(m.Height+2*width, m.Width+2*width)
	for row := 0; row < m.Height; row++ {
		copy(out.Data[(row+width)*out.Width+width:], m.Data[row*m.Width:(row+1)*m.Width])
	}
	return out
}

// Extract cuts one patch per selected, labeled pixel of mask, in row-major order of
// the mask. Selected background pixels are skipped.
func Extract(c *Cube, labels *LabelMap, mask *Mask, patchSize int) (*Samples, error) {
	if err := ValidatePatchSize(patchSize); err != nil {
		return nil, err
	}
	if !labels.sameShape(c.height, c.width) {
		return nil, errors.Wrapf(ErrDataShapeMismatch, "labels %dx%d do not match cube %dx%d",
			labels.Height, labels.Width, c.height, c.width)
	}
	if mask.Height != c.height || mask.Width != c.width {
		return nil, errors.Wrapf(ErrDataShapeMismatch, "mask %dx%d does not match cube %dx%d",
			mask.Height, mask.Width, c.height, c.width)
	}

	width := patchSize / 2
	paddedLabels := PadConstant(labels, width, Background)
	paddedMask := padMask(mask, width)

	var coords []Coord
	var truth []int
	for i, selected := range paddedMask.Data {
		if !selected || paddedLabels.Data[i] == Background {
			continue
		}
		row, col := i/paddedMask.Width, i%paddedMask.Width
		coords = append(coords, Coord{Row: row - width, Col: col - width})
		truth = append(truth, paddedLabels.Data[i])
	}

	s := cutPatches(PadReflect(c, width), coords, patchSize)
	s.Truth = truth
	s.Targets = make([]int, len(truth))
	for i, v := range truth {
		s.Targets[i] = v - 1
	}
	return s, nil
}

// ExtractAll cuts a patch around every pixel of the image in row-major raster order.
func ExtractAll(c *Cube, patchSize int) (*Samples, error) {
	if err := ValidatePatchSize(patchSize); err != nil {
		return nil, err
	}
	coords := Ones(c.height, c.width).Coords()
	width := patchSize / 2
	return cutPatches(PadReflect(c, width), coords, patchSize), nil
}

// cutPatches copies the windows centred on coords out of the padded cube. coords are
// unpadded, so in padded space each window starts exactly at the coordinate.
func cutPatches(padded *Cube, coords []Coord, patchSize int) *Samples {
	s := &Samples{
		Bands:  padded.bands,
		Size:   patchSize,
		Coords: coords,
		Data:   make([]float32, len(coords)*padded.bands*patchSize*patchSize),
	}
	for i, p := range coords {
		dst := s.Patch(i)
		for b := 0; b < padded.bands; b++ {
			for dy := 0; dy < patchSize; dy++ {
				start := (b*padded.height+p.Row+dy)*padded.width + p.Col
				copy(dst[(b*patchSize+dy)*patchSize:(b*patchSize+dy+1)*patchSize], padded.data[start:start+patchSize])
			}
		}
	}
	return s
}
