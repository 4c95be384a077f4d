package training

import (
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
	"go.uber.org/zap"

	"hsicnn/hsi"
	"hsicnn/neuralnet"
)

// Prediction is the full-scene result. Raw holds a class for every pixel; Masked is
// Raw with background pixels of the label map set to zero.
type Prediction struct {
	Raw             *hsi.ClassMap
	Masked          *hsi.ClassMap
	OverallAccuracy float64
}

type InferOptions struct {
	BatchSize int
	// Progress draws a terminal progress bar over the batches.
	Progress bool
	Logger   *zap.Logger
}

// Assemble writes classes[i] at coords[i] of a height x width map. Positions without a
// sample stay Background.
func Assemble(height, width int, coords []hsi.Coord, classes []int) (*hsi.ClassMap, error) {
	if len(coords) != len(classes) {
		return nil, errors.Wrapf(hsi.ErrDataShapeMismatch, "%d coordinates for %d predictions", len(coords), len(classes))
	}
	m := &hsi.ClassMap{Height: height, Width: width, Data: make([]int, height*width)}
	for i, c := range coords {
		if c.Row < 0 || c.Row >= height || c.Col < 0 || c.Col >= width {
			return nil, errors.Wrapf(hsi.ErrDataShapeMismatch, "coordinate %v outside %dx%d", c, height, width)
		}
		m.Data[c.Row*width+c.Col] = classes[i]
	}
	return m, nil
}

// Infer classifies every pixel of cube and scores the labeled ones.
func Infer(model neuralnet.Classifier, cube *hsi.Cube, labels *hsi.LabelMap, patchSize int, opts InferOptions) (*Prediction, error) {
	if labels.Height != cube.Height() || labels.Width != cube.Width() {
		return nil, errors.Wrapf(hsi.ErrDataShapeMismatch, "labels %dx%d do not match cube %dx%d",
			labels.Height, labels.Width, cube.Height(), cube.Width())
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultEvalBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if m, ok := model.(neuralnet.Model); ok {
		m.SetTraining(false)
	}

	samples, err := hsi.ExtractAll(cube, patchSize)
	if err != nil {
		return nil, err
	}
	logger.Info("extracted all-pixel patches",
		zap.Int("patches", samples.Len()),
		zap.String("size", humanize.Bytes(uint64(len(samples.Data)*4))))

	ds := hsi.NewPatchDataset(samples)
	loader, err := hsi.NewDataLoader(ds, opts.BatchSize, false, nil)
	if err != nil {
		return nil, err
	}
	classes := make([]int, 0, ds.Len())
	coords := make([]hsi.Coord, 0, ds.Len())
	predictBatch := func() error {
		batch, err := loader.Next()
		if err != nil {
			return err
		}
		logits, err := model.Forward(batch.Data)
		if err != nil {
			return errors.Wrap(err, "forward pass failed")
		}
		pred, err := Predict(logits)
		if err != nil {
			return err
		}
		classes = append(classes, pred...)
		for _, idx := range batch.Indices {
			coords = append(coords, ds.Coord(idx))
		}
		return nil
	}

	if opts.Progress {
		var batchErr error
		err = tqdm.With(iterators.Interval(0, loader.Len()), "Predicting", func(v interface{}) (brk bool) {
			if batchErr = predictBatch(); batchErr != nil {
				return true
			}
			return false
		})
		if batchErr != nil {
			err = batchErr
		}
	} else {
		for loader.HasNext() && err == nil {
			err = predictBatch()
		}
	}
	if err != nil {
		return nil, err
	}

	raw, err := Assemble(cube.Height(), cube.Width(), coords, classes)
	if err != nil {
		return nil, err
	}
	masked := &hsi.ClassMap{Height: raw.Height, Width: raw.Width, Data: append([]int(nil), raw.Data...)}
	for i, l := range labels.Data {
		if l == hsi.Background {
			masked.Data[i] = hsi.Background
		}
	}
	oa, err := hsi.OverallAccuracy(masked.Data, labels.Data)
	if err != nil {
		return nil, err
	}
	return &Prediction{Raw: raw, Masked: masked, OverallAccuracy: oa}, nil
}
