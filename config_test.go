package main

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hsicnn/hsi"
	"hsicnn/pipeline"
)

func TestParseConfig(t *testing.T) {
	rc, err := parseConfig([]byte(`
epoch: 10
batch_size: 128
lr: 0.001
train_prop: 0.2
val_prop: 0.1
seed: 7
optimizer: sgd
momentum: 0.9
`))
	require.NoError(t, err)
	params, err := rc.Validate()
	require.NoError(t, err)
	assert.Equal(t, 10, params.Epoch)
	assert.Equal(t, 128, params.BatchSize)
	assert.Equal(t, float32(0.001), params.Lr)
	assert.Equal(t, pipeline.DefaultPatchSize, rc.PatchSize)
	assert.Equal(t, pipeline.OptimizerSGD, rc.Optimizer)
	require.NotNil(t, rc.Seed)
	assert.Equal(t, int64(7), *rc.Seed)
}

func TestParseConfigDefaults(t *testing.T) {
	rc, err := parseConfig([]byte("epoch: 1\nbatch_size: 2\nlr: 0.1\n"))
	require.NoError(t, err)
	assert.Nil(t, rc.Seed)
	assert.Equal(t, pipeline.DefaultConfig().TrainProp, rc.TrainProp)
	assert.Equal(t, pipeline.OptimizerAdam, rc.Optimizer)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := parseConfig([]byte("epoch: 1\nbatchsize: 2\n"))
	assert.Equal(t, hsi.ErrConfiguration, errors.Cause(err), "unknown keys are rejected")

	rc, err := parseConfig([]byte("batch_size: 2\nlr: 0.1\n"))
	require.NoError(t, err)
	_, err = rc.Validate()
	assert.Equal(t, hsi.ErrConfiguration, errors.Cause(err))
}

func TestReadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("epoch: 3\nbatch_size: 4\nlr: 0.01\npatch_size: 5\n"), 0644))
	rc, err := readConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, rc.PatchSize)

	_, err = readConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
