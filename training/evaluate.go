package training

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"

	"hsicnn/hsi"
	"hsicnn/neuralnet"
)

// Predict returns argmax+1 of every row of (N, K) logits, i.e. original class labels.
func Predict(logits *tensor.Dense) ([]int, error) {
	shape := logits.Shape()
	if logits.Dims() != 2 {
		return nil, errors.Errorf("logits shape %v, want (N, K)", shape)
	}
	data, ok := logits.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("logits dtype %v, want float32", logits.Dtype())
	}
	n, k := shape[0], shape[1]
	row := make([]float64, k)
	classes := make([]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			row[j] = float64(data[i*k+j])
		}
		classes[i] = floats.MaxIdx(row) + 1
	}
	return classes, nil
}

// Evaluate returns the overall accuracy of model on ds. A trainable model is put in
// evaluation mode and left there. Predictions are scored against the original labels
// reported by ds.Truth, so background samples never count.
func Evaluate(model neuralnet.Classifier, ds hsi.Dataset, batchSize int) (float64, error) {
	if m, ok := model.(neuralnet.Model); ok {
		m.SetTraining(false)
	}
	loader, err := hsi.NewDataLoader(ds, batchSize, false, nil)
	if err != nil {
		return 0, err
	}
	pred := make([]int, 0, ds.Len())
	truth := make([]int, 0, ds.Len())
	for loader.HasNext() {
		batch, err := loader.Next()
		if err != nil {
			return 0, err
		}
		logits, err := model.Forward(batch.Data)
		if err != nil {
			return 0, errors.Wrap(err, "forward pass failed")
		}
		classes, err := Predict(logits)
		if err != nil {
			return 0, err
		}
		pred = append(pred, classes...)
		truth = append(truth, batch.Truth...)
	}
	return hsi.OverallAccuracy(pred, truth)
}
