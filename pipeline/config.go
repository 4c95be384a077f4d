package pipeline

import (
	"github.com/pkg/errors"

	"hsicnn/hsi"
	"hsicnn/neuralnet"
	"hsicnn/training"
)

const (
	DefaultPatchSize = 9
	DefaultTrainProp = 0.2
	DefaultValProp   = 0.1

	defaultEvalBatchSize = 10

	OptimizerAdam = "adam"
	OptimizerSGD  = "sgd"

	ActivationReLU      = "relu"
	ActivationLeakyReLU = "leaky_relu"

	leakyReLUSlope = 0.01
)

// Config describes one run. Zero widths select the default architecture.
type Config struct {
	Training        training.Options `yaml:",inline"`
	TrainProp       float64          `yaml:"train_prop"`
	ValProp         float64          `yaml:"val_prop"`
	PatchSize       int              `yaml:"patch_size"`
	Seed            int64            `yaml:"-"`
	StrictPartition bool             `yaml:"strict_partition"`
	EvalBatchSize   int              `yaml:"eval_batch_size"`
	Optimizer       string           `yaml:"optimizer"`
	Momentum        float32          `yaml:"momentum"`
	WeightDecay     float32          `yaml:"weight_decay"`

	Conv1      int    `yaml:"conv1"`
	Conv2      int    `yaml:"conv2"`
	Hidden     int    `yaml:"hidden"`
	Activation string `yaml:"activation"`

	// Progress draws a progress bar during full-scene inference.
	Progress bool `yaml:"-"`
}

// DefaultConfig returns the proportions and patch size of the reference setup. The
// training options are left unset.
func DefaultConfig() Config {
	return Config{
		TrainProp: DefaultTrainProp,
		ValProp:   DefaultValProp,
		PatchSize: DefaultPatchSize,
		Optimizer: OptimizerAdam,
	}
}

// Validate checks everything that can be checked before touching the data.
func (c Config) Validate() (training.Params, error) {
	params, err := c.Training.Params()
	if err != nil {
		return training.Params{}, err
	}
	if err := hsi.ValidateProportions(c.TrainProp, c.ValProp); err != nil {
		return training.Params{}, err
	}
	if err := hsi.ValidatePatchSize(c.PatchSize); err != nil {
		return training.Params{}, err
	}
	if c.Conv1 < 0 || c.Conv2 < 0 || c.Hidden < 0 {
		return training.Params{}, errors.Wrap(hsi.ErrConfiguration, "layer widths must not be negative")
	}
	// Widths are positive from here, so the architecture can only reject the patch size.
	if err := c.architecture(1, 1).Validate(); err != nil {
		return training.Params{}, errors.Wrapf(hsi.ErrInvalidPatchSize, "patch size %d is too small for the network", c.PatchSize)
	}
	if c.EvalBatchSize < 0 {
		return training.Params{}, errors.Wrapf(hsi.ErrConfiguration, "eval_batch_size must not be negative, got %d", c.EvalBatchSize)
	}
	switch c.Optimizer {
	case "", OptimizerAdam, OptimizerSGD:
	default:
		return training.Params{}, errors.Wrapf(hsi.ErrConfiguration, "unknown optimizer %q", c.Optimizer)
	}
	switch c.Activation {
	case "", ActivationReLU, ActivationLeakyReLU:
	default:
		return training.Params{}, errors.Wrapf(hsi.ErrConfiguration, "unknown activation %q", c.Activation)
	}
	return params, nil
}

func (c Config) architecture(bands, classes int) neuralnet.Architecture {
	arch := neuralnet.DefaultArchitecture(bands, c.PatchSize, classes)
	if c.Conv1 > 0 {
		arch.Conv1 = c.Conv1
	}
	if c.Conv2 > 0 {
		arch.Conv2 = c.Conv2
	}
	if c.Hidden > 0 {
		arch.Hidden = c.Hidden
	}
	if c.Activation == ActivationLeakyReLU {
		arch.Activation = neuralnet.NewLeakyReLU(leakyReLUSlope)
	}
	return arch
}

func (c Config) optimizer(lr float32) neuralnet.Optimizer {
	if c.Optimizer == OptimizerSGD {
		return neuralnet.NewSGD(lr, c.Momentum, c.WeightDecay)
	}
	cfg := neuralnet.DefaultAdamConfig()
	cfg.LearningRate = lr
	cfg.WeightDecay = c.WeightDecay
	return neuralnet.NewAdam(cfg)
}
