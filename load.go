package main

import (
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"hsicnn/hsi"
)

func readNpy(path string) (*tensor.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	t := new(tensor.Dense)
	if err := t.ReadNpy(file); err != nil {
		return nil, errors.Wrapf(hsi.ErrDataShapeMismatch, "no array found in %s: %v", path, err)
	}
	return t, nil
}

// toFloat32 copies any numeric backing slice.
func toFloat32(data interface{}) ([]float32, bool) {
	var out []float32
	switch d := data.(type) {
	case []float32:
		out = append(out, d...)
	case []float64:
		out = make([]float32, len(d))
		for i, v := range d {
			out[i] = float32(v)
		}
	case []int:
		out = make([]float32, len(d))
		for i, v := range d {
			out[i] = float32(v)
		}
	case []int64:
		out = make([]float32, len(d))
		for i, v := range d {
			out[i] = float32(v)
		}
	case []int32:
		out = make([]float32, len(d))
		for i, v := range d {
			out[i] = float32(v)
		}
	case []int16:
		out = make([]float32, len(d))
		for i, v := range d {
			out[i] = float32(v)
		}
	case []uint16:
		out = make([]float32, len(d))
		for i, v := range d {
			out[i] = float32(v)
		}
	case []uint8:
		out = make([]float32, len(d))
		for i, v := range d {
			out[i] = float32(v)
		}
	default:
		return nil, false
	}
	return out, true
}

func toInts(data interface{}) ([]int, bool) {
	var out []int
	switch d := data.(type) {
	case []int:
		out = append(out, d...)
	case []int64:
		out = make([]int, len(d))
		for i, v := range d {
			out[i] = int(v)
		}
	case []int32:
		out = make([]int, len(d))
		for i, v := range d {
			out[i] = int(v)
		}
	case []int16:
		out = make([]int, len(d))
		for i, v := range d {
			out[i] = int(v)
		}
	case []uint16:
		out = make([]int, len(d))
		for i, v := range d {
			out[i] = int(v)
		}
	case []uint8:
		out = make([]int, len(d))
		for i, v := range d {
			out[i] = int(v)
		}
	case []float64:
		out = make([]int, len(d))
		for i, v := range d {
			out[i] = int(v)
		}
	default:
		return nil, false
	}
	return out, true
}

// loadCube reads a height x width x bands array and returns it as bands x height x width.
func loadCube(path string) (*hsi.Cube, error) {
	raw, err := readNpy(path)
	if err != nil {
		return nil, err
	}
	if raw.Dims() != 3 {
		return nil, errors.Wrapf(hsi.ErrDataShapeMismatch, "%s: want a 3-d cube, got shape %v", path, raw.Shape())
	}
	data, ok := toFloat32(raw.Data())
	if !ok {
		return nil, errors.Wrapf(hsi.ErrDataShapeMismatch, "%s: unsupported dtype %v", path, raw.Dtype())
	}
	s := raw.Shape()
	t := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(s[0], s[1], s[2]), tensor.WithBacking(data))
	if err := t.T(2, 0, 1); err != nil {
		return nil, err
	}
	if err := t.Transpose(); err != nil {
		return nil, err
	}
	return hsi.NewCube(t)
}

// loadLabels reads a height x width integer array.
func loadLabels(path string) (*hsi.LabelMap, error) {
	raw, err := readNpy(path)
	if err != nil {
		return nil, err
	}
	if raw.Dims() != 2 {
		return nil, errors.Wrapf(hsi.ErrDataShapeMismatch, "%s: want a 2-d label map, got shape %v", path, raw.Shape())
	}
	data, ok := toInts(raw.Data())
	if !ok {
		return nil, errors.Wrapf(hsi.ErrDataShapeMismatch, "%s: unsupported dtype %v", path, raw.Dtype())
	}
	s := raw.Shape()
	return hsi.NewLabelMap(s[0], s[1], data)
}

func saveClassMap(path string, m *hsi.ClassMap) error {
	return saveNpy(path, m.Dense())
}

// saveNpy writes t to path. A failed write removes the partial file.
func saveNpy(path string, t *tensor.Dense) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.WriteNpy(file); err != nil {
		file.Close()
		os.Remove(path)
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return file.Close()
}
