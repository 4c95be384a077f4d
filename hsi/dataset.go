package hsi

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Dataset is an indexable, length-known source of patch samples.
type Dataset interface {
	Len() int
	// Get returns a sample and its zero-indexed target, -1 when unlabeled.
	Get(idx int) (patch []float32, target int, err error)
	// Truth returns the original label of a sample, Background when unlabeled.
	Truth(idx int) int
	Coord(idx int) Coord
	PatchShape() (bands, size int)
}

// PatchDataset adapts Samples to Dataset.
type PatchDataset struct {
	samples *Samples
}

func NewPatchDataset(samples *Samples) *PatchDataset {
	return &PatchDataset{samples: samples}
}

func (d *PatchDataset) Len() int { return d.samples.Len() }

func (d *PatchDataset) Get(idx int) ([]float32, int, error) {
	if idx < 0 || idx >= d.Len() {
		return nil, 0, errors.Errorf("sample index %d out of range [0,%d)", idx, d.Len())
	}
	target := -1
	if d.samples.Targets != nil {
		target = d.samples.Targets[idx]
	}
	return d.samples.Patch(idx), target, nil
}

func (d *PatchDataset) Truth(idx int) int {
	if d.samples.Truth == nil {
		return Background
	}
	return d.samples.Truth[idx]
}

func (d *PatchDataset) Coord(idx int) Coord { return d.samples.Coords[idx] }

func (d *PatchDataset) PatchShape() (int, int) { return d.samples.Bands, d.samples.Size }

// Batch is a group of samples stacked into one (n, bands, size, size) tensor.
type Batch struct {
	Data    *tensor.Dense
	Targets []int
	Truth   []int
	Indices []int
}

func (b *Batch) Len() int { return len(b.Indices) }

// DataLoader iterates a Dataset in fixed-size batches.
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
}

// NewDataLoader creates a loader. shuffle requires rng.
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool, rng *rand.Rand) (*DataLoader, error) {
	if batchSize <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "batch size must be positive, got %d", batchSize)
	}
	if shuffle && rng == nil {
		return nil, errors.Wrap(ErrConfiguration, "shuffling loader needs a random source")
	}
	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}
	return &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rng,
		indices:   indices,
	}, nil
}

// Len returns the number of batches in an epoch.
func (dl *DataLoader) Len() int {
	return (len(dl.indices) + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader and reshuffles when shuffling is enabled.
func (dl *DataLoader) Reset() {
	dl.position = 0
	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

func (dl *DataLoader) HasNext() bool { return dl.position < len(dl.indices) }

// Next returns the next batch, or nil at the end of the epoch.
func (dl *DataLoader) Next() (*Batch, error) {
	if !dl.HasNext() {
		return nil, nil
	}
	end := dl.position + dl.batchSize
	if end > len(dl.indices) {
		end = len(dl.indices)
	}
	idx := dl.indices[dl.position:end]
	dl.position = end

	bands, size := dl.dataset.PatchShape()
	n := bands * size * size
	data := make([]float32, len(idx)*n)
	b := &Batch{
		Targets: make([]int, len(idx)),
		Truth:   make([]int, len(idx)),
		Indices: append([]int(nil), idx...),
	}
	for i, j := range idx {
		patch, target, err := dl.dataset.Get(j)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load sample %d", j)
		}
		if len(patch) != n {
			return nil, errors.Wrapf(ErrDataShapeMismatch, "sample %d has %d values, want %d", j, len(patch), n)
		}
		copy(data[i*n:], patch)
		b.Targets[i] = target
		b.Truth[i] = dl.dataset.Truth(j)
	}
	b.Data = tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(len(idx), bands, size, size), tensor.WithBacking(data))
	return b, nil
}
