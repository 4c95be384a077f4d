package hsi

import (
	"fmt"

	"github.com/pkg/errors"
)

// OverallAccuracy is the fraction of non-background truth entries whose prediction
// matches. pred and truth must use the same label convention.
func OverallAccuracy(pred, truth []int) (float64, error) {
	if len(pred) != len(truth) {
		return 0, errors.Wrapf(ErrDataShapeMismatch, "%d predictions for %d labels", len(pred), len(truth))
	}
	var labeled, correct int
	for i, t := range truth {
		if t == Background {
			continue
		}
		labeled++
		if pred[i] == t {
			correct++
		}
	}
	if labeled == 0 {
		return 0, ErrDivisionByZero
	}
	return float64(correct) / float64(labeled), nil
}

// Percent formats an accuracy as a percentage.
func Percent(acc float64) string {
	return fmt.Sprintf("%.4f %%", acc*100)
}
