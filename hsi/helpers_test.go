package hsi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// rampCube fills value = band*1000 + row*100 + col so every voxel is distinct.
func rampCube(t *testing.T, bands, height, width int) *Cube {
	data := make([]float32, bands*height*width)
	for b := 0; b < bands; b++ {
		for r := 0; r < height; r++ {
			for c := 0; c < width; c++ {
				data[(b*height+r)*width+c] = float32(b*1000 + r*100 + c)
			}
		}
	}
	cube, err := NewCubeFromData(bands, height, width, data)
	require.NoError(t, err)
	return cube
}

// stripedLabels gives class populations 20/15/5 on a 10x10 grid, rest background.
func stripedLabels(t *testing.T) *LabelMap {
	data := make([]int, 100)
	for i := 0; i < 20; i++ {
		data[i] = 1
	}
	for i := 20; i < 35; i++ {
		data[i] = 2
	}
	for i := 35; i < 40; i++ {
		data[i] = 3
	}
	labels, err := NewLabelMap(10, 10, data)
	require.NoError(t, err)
	return labels
}
