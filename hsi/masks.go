package hsi

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// MinSamplesPerSplit is the per-class floor applied to the train and validation splits.
const MinSamplesPerSplit = 3

// ValidateProportions checks 0 < trainProp, valProp < 1 and trainProp + valProp < 1.
func ValidateProportions(trainProp, valProp float64) error {
	if !(trainProp > 0 && trainProp < 1) {
		return errors.Wrapf(ErrConfiguration, "train_prop must be in (0,1), got %v", trainProp)
	}
	if !(valProp > 0 && valProp < 1) {
		return errors.Wrapf(ErrConfiguration, "val_prop must be in (0,1), got %v", valProp)
	}
	if trainProp+valProp >= 1 {
		return errors.Wrapf(ErrConfiguration, "train_prop + val_prop must be < 1, got %v", trainProp+valProp)
	}
	return nil
}

// flooredCounts applies max(round(n*prop), 3) to both splits. Rounding is half to even.
func flooredCounts(n int, trainProp, valProp float64) (int, int) {
	train := int(math.RoundToEven(float64(n) * trainProp))
	if train < MinSamplesPerSplit {
		train = MinSamplesPerSplit
	}
	val := int(math.RoundToEven(float64(n) * valProp))
	if val < MinSamplesPerSplit {
		val = MinSamplesPerSplit
	}
	return train, val
}

// SplitCounts returns the train, validation and test sizes for a class of n pixels.
// When the floors exceed n the validation slice shrinks first, then the train slice,
// so the three splits never overlap.
func SplitCounts(n int, trainProp, valProp float64) (train, val, test int) {
	train, val = flooredCounts(n, trainProp, valProp)
	if train > n {
		train = n
	}
	if val > n-train {
		val = n - train
	}
	return train, val, n - train - val
}

// ClassCounts returns the number of pixels per label value, indexed by label.
func ClassCounts(labels *LabelMap) []int {
	counts := make([]int, labels.NumClasses()+1)
	for _, v := range labels.Data {
		counts[v]++
	}
	return counts
}

// CheckClassSizes reports every present class too small to satisfy both floors.
func CheckClassSizes(labels *LabelMap, trainProp, valProp float64) error {
	var short []int
	for c, n := range ClassCounts(labels) {
		if c == Background || n == 0 {
			continue
		}
		train, val := flooredCounts(n, trainProp, valProp)
		if train+val > n {
			short = append(short, c)
		}
	}
	if len(short) > 0 {
		return errors.Wrapf(ErrConfiguration, "classes %v have fewer pixels than the train/val floor", short)
	}
	return nil
}

// GenerateMasks partitions the labeled pixels of every class into disjoint train,
// validation and test masks. Coordinates of each class are shuffled with rng.
func GenerateMasks(labels *LabelMap, trainProp, valProp float64, rng *rand.Rand) (train, val, test *Mask, err error) {
	if err := ValidateProportions(trainProp, valProp); err != nil {
		return nil, nil, nil, err
	}
	if rng == nil {
		return nil, nil, nil, errors.Wrap(ErrConfiguration, "nil random source")
	}

	h, w := labels.Height, labels.Width
	train, val, test = NewMask(h, w), NewMask(h, w), NewMask(h, w)

	byClass := make([][]Coord, labels.NumClasses()+1)
	for i, v := range labels.Data {
		if v == Background {
			continue
		}
		byClass[v] = append(byClass[v], Coord{Row: i / w, Col: i % w})
	}

	for c := 1; c < len(byClass); c++ {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTrain, nVal, _ := SplitCounts(len(idx), trainProp, valProp)
		for _, p := range idx[:nTrain] {
			train.Set(p)
		}
		for _, p := range idx[nTrain : nTrain+nVal] {
			val.Set(p)
		}
		for _, p := range idx[nTrain+nVal:] {
			test.Set(p)
		}
	}
	return train, val, test, nil
}
