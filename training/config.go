package training

import (
	"github.com/pkg/errors"

	"hsicnn/hsi"
)

// ErrNoTrainingPerformed is returned when zero epochs are requested.
var ErrNoTrainingPerformed = errors.New("no training performed")

// Params are the validated training hyperparameters.
type Params struct {
	Epoch     int
	BatchSize int
	Lr        float32
}

// Options is the configuration-file form of Params. Every field must be set.
type Options struct {
	Epoch     *int     `yaml:"epoch"`
	BatchSize *int     `yaml:"batch_size"`
	Lr        *float32 `yaml:"lr"`
}

// Params checks presence and ranges and returns the usable values.
func (o Options) Params() (Params, error) {
	var missing []string
	if o.Epoch == nil {
		missing = append(missing, "epoch")
	}
	if o.BatchSize == nil {
		missing = append(missing, "batch_size")
	}
	if o.Lr == nil {
		missing = append(missing, "lr")
	}
	if len(missing) > 0 {
		return Params{}, errors.Wrapf(hsi.ErrConfiguration, "missing training options %v", missing)
	}
	p := Params{Epoch: *o.Epoch, BatchSize: *o.BatchSize, Lr: *o.Lr}
	return p, p.Validate()
}

func (p Params) Validate() error {
	switch {
	case p.Epoch == 0:
		return ErrNoTrainingPerformed
	case p.Epoch < 0:
		return errors.Wrapf(hsi.ErrConfiguration, "epoch must be positive, got %d", p.Epoch)
	case p.BatchSize <= 0:
		return errors.Wrapf(hsi.ErrConfiguration, "batch_size must be positive, got %d", p.BatchSize)
	case p.Lr <= 0:
		return errors.Wrapf(hsi.ErrConfiguration, "lr must be positive, got %v", p.Lr)
	}
	return nil
}
