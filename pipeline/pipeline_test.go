package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hsicnn/checkpoint"
	"hsicnn/hsi"
	"hsicnn/training"
)

func intPtr(v int) *int { return &v }

func float32Ptr(v float32) *float32 { return &v }

// scene is a 4-band 10x10 cube whose bands vary with the class, and a label map
// with class populations 20/15/5.
func scene(t *testing.T) (*hsi.Cube, *hsi.LabelMap) {
	t.Helper()
	const bands, h, w = 4, 10, 10
	labels := make([]int, h*w)
	for i := 0; i < 20; i++ {
		labels[i] = 1
	}
	for i := 20; i < 35; i++ {
		labels[i] = 2
	}
	for i := 35; i < 40; i++ {
		labels[i] = 3
	}
	data := make([]float32, bands*h*w)
	for b := 0; b < bands; b++ {
		for i := 0; i < h*w; i++ {
			data[b*h*w+i] = float32(labels[i]*(b+1)) + float32(i%7)*0.1
		}
	}
	cube, err := hsi.NewCubeFromData(bands, h, w, data)
	require.NoError(t, err)
	lm, err := hsi.NewLabelMap(h, w, labels)
	require.NoError(t, err)
	return cube, lm
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TrainProp, cfg.ValProp = 0.2, 0.2
	cfg.PatchSize = 5
	cfg.Seed = 42
	cfg.Training = training.Options{Epoch: intPtr(2), BatchSize: intPtr(4), Lr: float32Ptr(0.01)}
	cfg.Conv1, cfg.Conv2, cfg.Hidden = 8, 8, 16
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	cube, labels := scene(t)
	dir := t.TempDir()
	store := checkpoint.NewStore(dir)

	res, err := Run(testConfig(), cube, labels, store, nil)
	require.NoError(t, err)

	require.NotNil(t, res.Prediction)
	masked := res.Prediction.Masked
	assert.Equal(t, 10, masked.Height)
	assert.Equal(t, 10, masked.Width)
	for i, v := range masked.Data {
		if labels.Data[i] == hsi.Background {
			assert.Equal(t, hsi.Background, v, "pixel %d", i)
		} else {
			assert.Contains(t, []int{1, 2, 3}, v, "pixel %d", i)
		}
	}
	for _, v := range res.Prediction.Raw.Data {
		assert.Contains(t, []int{1, 2, 3}, v)
	}

	assert.Len(t, res.History, 2)
	require.NotNil(t, res.Best)
	assert.True(t, res.Best.Epoch == 1 || res.Best.Epoch == 2)
	assert.True(t, res.TestScored)
	assert.Equal(t, []int{60, 20, 15, 5}, res.ClassCounts)
	assert.FileExists(t, filepath.Join(dir, training.BestModelName+".ckpt"))
}

func TestRunIsDeterministic(t *testing.T) {
	cube, labels := scene(t)
	a, err := Run(testConfig(), cube, labels, checkpoint.NewStore(t.TempDir()), nil)
	require.NoError(t, err)
	b, err := Run(testConfig(), cube, labels, checkpoint.NewStore(t.TempDir()), nil)
	require.NoError(t, err)
	assert.Equal(t, a.Prediction.Raw.Data, b.Prediction.Raw.Data)
	assert.Equal(t, a.Best.ValAcc, b.Best.ValAcc)
}

func TestRunValidatesBeforeWork(t *testing.T) {
	cube, labels := scene(t)
	dir := t.TempDir()
	store := checkpoint.NewStore(filepath.Join(dir, "ckpt"))

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"small patch", func(c *Config) { c.PatchSize = 3 }, hsi.ErrInvalidPatchSize},
		{"even patch", func(c *Config) { c.PatchSize = 6 }, hsi.ErrInvalidPatchSize},
		{"missing lr", func(c *Config) { c.Training.Lr = nil }, hsi.ErrConfiguration},
		{"zero epochs", func(c *Config) { c.Training.Epoch = intPtr(0) }, training.ErrNoTrainingPerformed},
		{"proportions", func(c *Config) { c.TrainProp, c.ValProp = 0.6, 0.5 }, hsi.ErrConfiguration},
		{"optimizer", func(c *Config) { c.Optimizer = "rmsprop" }, hsi.ErrConfiguration},
		{"activation", func(c *Config) { c.Activation = "gelu" }, hsi.ErrConfiguration},
		{"strict partition", func(c *Config) { c.StrictPartition = true }, hsi.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)
			_, err := Run(cfg, cube, labels, store, nil)
			assert.Equal(t, tt.want, errors.Cause(err))
			assert.False(t, store.Exists(training.BestModelName), "no checkpoint after a failed run")
		})
	}
}

func TestRunShapeMismatch(t *testing.T) {
	cube, _ := scene(t)
	labels, err := hsi.NewLabelMap(10, 9, make([]int, 90))
	require.NoError(t, err)
	_, err = Run(testConfig(), cube, labels, checkpoint.NewStore(t.TempDir()), nil)
	assert.Equal(t, hsi.ErrDataShapeMismatch, errors.Cause(err))
}

func TestRunSGDLeakyReLU(t *testing.T) {
	cube, labels := scene(t)
	cfg := testConfig()
	cfg.Optimizer = OptimizerSGD
	cfg.Momentum = 0.9
	cfg.Activation = ActivationLeakyReLU
	res, err := Run(cfg, cube, labels, checkpoint.NewStore(t.TempDir()), nil)
	require.NoError(t, err)
	assert.Equal(t, 10*10, len(res.Prediction.Raw.Data))
}
