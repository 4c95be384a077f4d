package pipeline

import (
	"math/rand"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"hsicnn/checkpoint"
	"hsicnn/hsi"
	"hsicnn/neuralnet"
	"hsicnn/training"
)

// Result summarizes a completed run.
type Result struct {
	Best *training.Record
	// TestScored is false when the test split came out empty.
	TestScored   bool
	TestAccuracy float64
	Prediction   *training.Prediction
	ClassCounts  []int
	History      []training.Record
}

// Run trains a classifier on cube and labels and classifies the whole scene. The best
// checkpoint is written to store under training.BestModelName and restored before the
// test split and the scene are scored.
func Run(cfg Config, cube *hsi.Cube, labels *hsi.LabelMap, store *checkpoint.Store, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	params, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if cube.Height() != labels.Height || cube.Width() != labels.Width {
		return nil, errors.Wrapf(hsi.ErrDataShapeMismatch, "cube is %dx%d, labels are %dx%d",
			cube.Height(), cube.Width(), labels.Height, labels.Width)
	}
	classes := labels.NumClasses()
	if classes == 0 {
		return nil, errors.Wrap(hsi.ErrConfiguration, "label map has no labeled pixels")
	}
	if cfg.StrictPartition {
		if err := hsi.CheckClassSizes(labels, cfg.TrainProp, cfg.ValProp); err != nil {
			return nil, err
		}
	}
	logger.Info("loaded scene",
		zap.Int("bands", cube.Bands()),
		zap.Int("height", cube.Height()),
		zap.Int("width", cube.Width()),
		zap.Int("classes", classes))

	rng := rand.New(rand.NewSource(cfg.Seed))
	norm := hsi.Normalize(cube)

	trainMask, valMask, testMask, err := hsi.GenerateMasks(labels, cfg.TrainProp, cfg.ValProp, rng)
	if err != nil {
		return nil, err
	}
	counts := hsi.ClassCounts(labels)
	for c := 1; c < len(counts); c++ {
		if counts[c] == 0 {
			continue
		}
		train, val, test := hsi.SplitCounts(counts[c], cfg.TrainProp, cfg.ValProp)
		logger.Debug("class partition", zap.Int("class", c), zap.Int("pixels", counts[c]),
			zap.Int("train", train), zap.Int("val", val), zap.Int("test", test))
	}
	logger.Info("generated masks",
		zap.Int("train", trainMask.Count()),
		zap.Int("val", valMask.Count()),
		zap.Int("test", testMask.Count()))

	trainSet, err := extract(norm, labels, trainMask, cfg.PatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "train split")
	}
	valSet, err := extract(norm, labels, valMask, cfg.PatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "validation split")
	}
	testSet, err := extract(norm, labels, testMask, cfg.PatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "test split")
	}

	model, err := neuralnet.NewCNN(cfg.architecture(cube.Bands(), classes), rng)
	if err != nil {
		return nil, err
	}
	logger.Info("built model", zap.Stringer("model", model), zap.Int("params", countParams(model.Params())))

	evalBatch := orDefault(cfg.EvalBatchSize, defaultEvalBatchSize)
	trainer, err := training.NewTrainer(model, params,
		training.WithOptimizer(cfg.optimizer(params.Lr)),
		training.WithLogger(logger),
		training.WithRand(rng),
		training.WithEvalBatchSize(evalBatch))
	if err != nil {
		return nil, err
	}
	best, err := trainer.Train(trainSet, valSet)
	if err != nil {
		return nil, err
	}
	if err := training.SaveBest(store, best); err != nil {
		return nil, errors.Wrap(err, "failed to save best model")
	}
	if _, err := training.LoadBest(store, model); err != nil {
		return nil, errors.Wrap(err, "failed to load best model")
	}

	res := &Result{Best: best, ClassCounts: counts, History: trainer.History()}
	if testSet.Len() > 0 {
		res.TestAccuracy, err = training.Evaluate(model, testSet, evalBatch)
		if err != nil {
			return nil, errors.Wrap(err, "test accuracy")
		}
		res.TestScored = true
		logger.Info("test split scored", zap.String("overall_accuracy", hsi.Percent(res.TestAccuracy)))
	} else {
		logger.Warn("test split is empty, skipping test accuracy")
	}

	res.Prediction, err = training.Infer(model, norm, labels, cfg.PatchSize, training.InferOptions{
		BatchSize: evalBatch,
		Progress:  cfg.Progress,
		Logger:    logger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "full-scene inference")
	}
	logger.Info("scene classified", zap.String("overall_accuracy", hsi.Percent(res.Prediction.OverallAccuracy)))
	return res, nil
}

func extract(cube *hsi.Cube, labels *hsi.LabelMap, mask *hsi.Mask, patchSize int) (hsi.Dataset, error) {
	samples, err := hsi.Extract(cube, labels, mask, patchSize)
	if err != nil {
		return nil, err
	}
	return hsi.NewPatchDataset(samples), nil
}

func countParams(params []*neuralnet.Param) int {
	var n int
	for _, p := range params {
		if p.Trainable() {
			n += len(p.Value)
		}
	}
	return n
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
