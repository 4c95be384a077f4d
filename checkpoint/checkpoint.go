package checkpoint

import (
	"sort"
	"time"

	"hsicnn/neuralnet"
)

const (
	formatVersion = "1.0.0"
	framework     = "hsicnn"
)

// Checkpoint is a complete model state plus the training progress it was taken at.
type Checkpoint struct {
	Weights       []WeightTensor `json:"weights"`
	TrainingState TrainingState  `json:"training_state"`
	Metadata      Metadata       `json:"metadata"`
}

// WeightTensor is one named parameter or buffer.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState records where the weights were captured.
type TrainingState struct {
	Epoch    int     `json:"epoch"`
	Batch    int     `json:"batch"`
	Loss     float64 `json:"loss"`
	TrainAcc float64 `json:"train_accuracy"`
	ValAcc   float64 `json:"val_accuracy"`
}

type Metadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// FromSnapshot converts a snapshot to weight tensors sorted by name.
func FromSnapshot(s neuralnet.Snapshot) []WeightTensor {
	weights := make([]WeightTensor, 0, len(s))
	for name, t := range s {
		weights = append(weights, WeightTensor{
			Name:  name,
			Shape: append([]int(nil), t.Shape...),
			Data:  append([]float32(nil), t.Data...),
		})
	}
	sort.Slice(weights, func(i, j int) bool { return weights[i].Name < weights[j].Name })
	return weights
}

// ToSnapshot rebuilds the snapshot stored in the checkpoint.
func (c *Checkpoint) ToSnapshot() neuralnet.Snapshot {
	s := make(neuralnet.Snapshot, len(c.Weights))
	for _, w := range c.Weights {
		s[w.Name] = neuralnet.SavedTensor{Shape: w.Shape, Data: w.Data}
	}
	return s
}
