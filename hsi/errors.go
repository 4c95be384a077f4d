package hsi

import "github.com/pkg/errors"

var (
	// ErrConfiguration reports invalid or missing hyperparameters and split proportions.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrInvalidPatchSize reports a non-positive, even or too small patch size.
	ErrInvalidPatchSize = errors.New("invalid patch size")
	// ErrDataShapeMismatch reports arrays whose dimensions disagree or cannot be used.
	ErrDataShapeMismatch = errors.New("data shape mismatch")
	// ErrDivisionByZero is returned when scoring finds no labeled pixel.
	ErrDivisionByZero = errors.New("no labeled pixels to score")
)
