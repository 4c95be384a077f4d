package main

import (
	"fmt"
	"os"
	"time"

	arg "github.com/alexflint/go-arg"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hsicnn/checkpoint"
	"hsicnn/hsi"
	"hsicnn/pipeline"
)

// newLogger writes errors to stderr and everything else to stdout.
func newLogger(verbose bool) *zap.Logger {
	minLevel := zapcore.InfoLevel
	if verbose {
		minLevel = zapcore.DebugLevel
	}
	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= minLevel && lvl < zapcore.ErrorLevel
	})

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder
	encoder := zapcore.NewJSONEncoder(config)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), isErrorLevel),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), isInfoLevel),
	)
	return zap.New(core, zap.AddCaller())
}

type cliArgs struct {
	Data        string `arg:"required" help:"hyperspectral cube as a height x width x bands .npy file"`
	Labels      string `arg:"required" help:"ground truth as a height x width .npy file"`
	Config      string `arg:"required" help:"YAML run configuration"`
	Checkpoints string `help:"directory for the best model checkpoint"`
	Out         string `help:"path of the masked prediction map"`
	RawOut      string `arg:"--raw-out" help:"path of the unmasked prediction map"`
	Seed        int64  `help:"random seed; overrides the configuration when non-zero"`
	Progress    bool   `help:"show a progress bar during full-scene inference"`
	Verbose     bool   `arg:"-v" help:"log every batch"`
}

func defaultArgs() cliArgs {
	return cliArgs{
		Checkpoints: "./model_save",
		Out:         "prediction.npy",
	}
}

func main() {
	args := defaultArgs()
	arg.MustParse(&args)

	logger := newLogger(args.Verbose)
	defer logger.Sync()

	if err := run(args, logger); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(args cliArgs, logger *zap.Logger) error {
	start := time.Now()
	rc, err := readConfig(args.Config)
	if err != nil {
		return err
	}
	cfg := rc.Config
	switch {
	case args.Seed != 0:
		cfg.Seed = args.Seed
	case rc.Seed != nil:
		cfg.Seed = *rc.Seed
	default:
		cfg.Seed = time.Now().UnixNano()
	}
	cfg.Progress = args.Progress
	if _, err := cfg.Validate(); err != nil {
		return err
	}

	cube, err := loadCube(args.Data)
	if err != nil {
		return err
	}
	labels, err := loadLabels(args.Labels)
	if err != nil {
		return err
	}
	logger.Info("loaded data", zap.Stringer("cube", cube), zap.Int64("seed", cfg.Seed))

	res, err := pipeline.Run(cfg, cube, labels, checkpoint.NewStore(args.Checkpoints), logger)
	if err != nil {
		return err
	}

	if err := saveClassMap(args.Out, res.Prediction.Masked); err != nil {
		return err
	}
	if args.RawOut != "" {
		if err := saveClassMap(args.RawOut, res.Prediction.Raw); err != nil {
			return err
		}
	}
	if res.TestScored {
		fmt.Printf("test accuracy: %s\n", hsi.Percent(res.TestAccuracy))
	}
	fmt.Printf("overall accuracy: %s\n", hsi.Percent(res.Prediction.OverallAccuracy))
	logger.Info("done", zap.Duration("elapsed", time.Since(start)))
	return nil
}
