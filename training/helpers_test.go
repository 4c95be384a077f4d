package training

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"hsicnn/hsi"
	"hsicnn/neuralnet"
)

// sceneFixture is an 8x8 scene with three horizontal class bands and a background
// column. Every band encodes the class so the patches are separable.
func sceneFixture(t *testing.T) (*hsi.Cube, *hsi.LabelMap) {
	t.Helper()
	const bands, h, w = 3, 8, 8
	labels := make([]int, h*w)
	data := make([]float32, bands*h*w)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			class := 1 + row*3/h
			if col == 0 {
				class = hsi.Background
			}
			labels[row*w+col] = class
			for b := 0; b < bands; b++ {
				v := float32(0)
				if b == class-1 {
					v = 1
				}
				data[(b*h+row)*w+col] = v
			}
		}
	}
	cube, err := hsi.NewCubeFromData(bands, h, w, data)
	require.NoError(t, err)
	lm, err := hsi.NewLabelMap(h, w, labels)
	require.NoError(t, err)
	return cube, lm
}

func splitFixture(t *testing.T, cube *hsi.Cube, labels *hsi.LabelMap, patch int) (train, val hsi.Dataset) {
	t.Helper()
	trainMask, valMask, _, err := hsi.GenerateMasks(labels, 0.4, 0.3, rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	ts, err := hsi.Extract(cube, labels, trainMask, patch)
	require.NoError(t, err)
	vs, err := hsi.Extract(cube, labels, valMask, patch)
	require.NoError(t, err)
	return hsi.NewPatchDataset(ts), hsi.NewPatchDataset(vs)
}

func smallModel(t *testing.T, bands, patch, classes int) *neuralnet.SimpleCNN {
	t.Helper()
	arch := neuralnet.DefaultArchitecture(bands, patch, classes)
	arch.Conv1, arch.Conv2, arch.Hidden = 4, 4, 8
	m, err := neuralnet.NewCNN(arch, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	return m
}

// constClassifier predicts the same class for every input.
type constClassifier struct {
	k, class int
}

func (c constClassifier) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	n := x.Shape()[0]
	logits := make([]float32, n*c.k)
	for i := 0; i < n; i++ {
		logits[i*c.k+c.class-1] = 1
	}
	return tensor.New(tensor.WithShape(n, c.k), tensor.WithBacking(logits)), nil
}
