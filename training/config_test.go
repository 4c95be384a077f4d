package training

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"

	"hsicnn/hsi"
)

func TestOptionsParams(t *testing.T) {
	var opts Options
	require.NoError(t, yaml.Unmarshal([]byte("epoch: 10\nbatch_size: 128\nlr: 0.001\n"), &opts))
	p, err := opts.Params()
	require.NoError(t, err)
	assert.Equal(t, Params{Epoch: 10, BatchSize: 128, Lr: 0.001}, p)
}

func TestOptionsParamsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"missing lr", "epoch: 1\nbatch_size: 2\n", hsi.ErrConfiguration},
		{"empty", "", hsi.ErrConfiguration},
		{"zero epochs", "epoch: 0\nbatch_size: 2\nlr: 0.1\n", ErrNoTrainingPerformed},
		{"negative epochs", "epoch: -1\nbatch_size: 2\nlr: 0.1\n", hsi.ErrConfiguration},
		{"zero batch", "epoch: 1\nbatch_size: 0\nlr: 0.1\n", hsi.ErrConfiguration},
		{"negative lr", "epoch: 1\nbatch_size: 2\nlr: -0.1\n", hsi.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts Options
			require.NoError(t, yaml.Unmarshal([]byte(tt.doc), &opts))
			_, err := opts.Params()
			assert.Equal(t, tt.want, errors.Cause(err))
		})
	}
}
