package hsi

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverallAccuracy_ExcludesBackground(t *testing.T) {
	acc, err := OverallAccuracy([]int{1, 2, 0, 2}, []int{1, 0, 0, 2})
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)
}

func TestOverallAccuracy_Partial(t *testing.T) {
	acc, err := OverallAccuracy([]int{1, 1, 3, 2}, []int{1, 2, 3, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.5, acc)
}

func TestOverallAccuracy_Errors(t *testing.T) {
	_, err := OverallAccuracy([]int{1, 2}, []int{0, 0})
	assert.Equal(t, ErrDivisionByZero, errors.Cause(err))

	_, err = OverallAccuracy([]int{1}, []int{1, 2})
	assert.Equal(t, ErrDataShapeMismatch, errors.Cause(err))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "87.5000 %", Percent(0.875))
}
