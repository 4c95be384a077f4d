package training

import (
	"math/rand"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"hsicnn/checkpoint"
	"hsicnn/hsi"
	"hsicnn/neuralnet"
)

// BestModelName is the checkpoint name of the selected model.
const BestModelName = "best_model"

const defaultEvalBatchSize = 10

type Phase int

const (
	Running Phase = iota
	Evaluating
	Done
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Evaluating:
		return "evaluating"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Record is one evaluation of the model. Epoch and Batch are 1-based.
type Record struct {
	Epoch    int
	Batch    int
	Loss     float64
	TrainAcc float64
	ValAcc   float64
	Snapshot neuralnet.Snapshot
}

// SelectBest returns the record to keep after evaluating cand. The first candidate
// always wins; later ones must strictly improve validation accuracy.
func SelectBest(best *Record, cand Record) *Record {
	if best == nil || cand.ValAcc > best.ValAcc {
		return &cand
	}
	return best
}

type Option func(*Trainer)

func WithOptimizer(o neuralnet.Optimizer) Option {
	return func(t *Trainer) { t.optimizer = o }
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithRand sets the source used to shuffle the training set every epoch.
func WithRand(rng *rand.Rand) Option {
	return func(t *Trainer) { t.rng = rng }
}

func WithEvalBatchSize(n int) Option {
	return func(t *Trainer) { t.evalBatchSize = n }
}

// Trainer runs mini-batch training and keeps the best validation checkpoint.
type Trainer struct {
	model         neuralnet.Model
	params        Params
	optimizer     neuralnet.Optimizer
	logger        *zap.Logger
	rng           *rand.Rand
	evalBatchSize int

	loss    neuralnet.SoftmaxCrossEntropy
	phase   Phase
	history []Record
}

// NewTrainer validates params. Without WithOptimizer the trainer uses Adam at params.Lr.
func NewTrainer(model neuralnet.Model, params Params, opts ...Option) (*Trainer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	t := &Trainer{
		model:         model,
		params:        params,
		logger:        zap.NewNop(),
		evalBatchSize: defaultEvalBatchSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.optimizer == nil {
		cfg := neuralnet.DefaultAdamConfig()
		cfg.LearningRate = params.Lr
		t.optimizer = neuralnet.NewAdam(cfg)
	}
	if t.rng == nil {
		t.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if t.evalBatchSize <= 0 {
		return nil, errors.Wrapf(hsi.ErrConfiguration, "eval batch size must be positive, got %d", t.evalBatchSize)
	}
	return t, nil
}

func (t *Trainer) Phase() Phase { return t.phase }

// History returns every evaluation so far, without snapshots.
func (t *Trainer) History() []Record { return t.history }

// Train runs every epoch and returns the best record. The model's parameters are left
// at their final-epoch values; restore Record.Snapshot to use the best model.
func (t *Trainer) Train(train, val hsi.Dataset) (*Record, error) {
	if train.Len() == 0 {
		return nil, errors.Wrap(hsi.ErrConfiguration, "training set is empty")
	}
	if val.Len() == 0 {
		return nil, errors.Wrap(hsi.ErrConfiguration, "validation set is empty")
	}
	loader, err := hsi.NewDataLoader(train, t.params.BatchSize, true, t.rng)
	if err != nil {
		return nil, err
	}

	t.history = t.history[:0]
	t.model.SetTraining(true)
	var best *Record
	for e := 0; e < t.params.Epoch; e++ {
		t.phase = Running
		loader.Reset()
		batches := loader.Len()
		losses := make([]float64, 0, batches)
		for i := 0; i < batches; i++ {
			batch, err := loader.Next()
			if err != nil {
				return nil, errors.Wrapf(err, "epoch %d batch %d", e+1, i+1)
			}
			loss, err := t.step(batch)
			if err != nil {
				return nil, errors.Wrapf(err, "epoch %d batch %d", e+1, i+1)
			}
			losses = append(losses, loss)
			t.logger.Debug("batch done", zap.Int("epoch", e+1), zap.Int("batch", i+1), zap.Float64("loss", loss))

			if i != batches-1 {
				continue
			}
			t.phase = Evaluating
			rec, err := t.evaluate(train, val)
			t.model.SetTraining(true)
			if err != nil {
				return nil, errors.Wrapf(err, "evaluating epoch %d", e+1)
			}
			rec.Epoch, rec.Batch, rec.Loss = e+1, i+1, loss

			mean, _ := stats.Mean(losses)
			t.logger.Info("epoch evaluated",
				zap.Int("epoch", rec.Epoch),
				zap.Int("batch", rec.Batch),
				zap.Float64("loss", rec.Loss),
				zap.Float64("mean_loss", mean),
				zap.Float64("train_acc", rec.TrainAcc),
				zap.Float64("val_acc", rec.ValAcc))

			summary := rec
			summary.Snapshot = nil
			t.history = append(t.history, summary)

			if next := SelectBest(best, rec); next != best {
				t.logger.Info("new best model", zap.Int("epoch", rec.Epoch), zap.Float64("val_acc", rec.ValAcc))
				best = next
			}
		}
	}
	t.phase = Done
	t.logger.Info("training finished",
		zap.Int("epoch", best.Epoch),
		zap.Int("batch", best.Batch),
		zap.Float64("loss", best.Loss),
		zap.Float64("train_acc", best.TrainAcc),
		zap.Float64("val_acc", best.ValAcc))
	return best, nil
}

func (t *Trainer) step(batch *hsi.Batch) (float64, error) {
	params := t.model.Params()
	neuralnet.ZeroGrad(params)
	logits, err := t.model.Forward(batch.Data)
	if err != nil {
		return 0, err
	}
	k := t.model.NumClasses()
	for _, target := range batch.Targets {
		if target < 0 || target >= k {
			return 0, errors.Wrapf(hsi.ErrDataShapeMismatch, "target %d outside [0,%d)", target, k)
		}
	}
	loss, grad := t.loss.Compute(logits.Data().([]float32), k, batch.Targets)
	if err := t.model.Backward(tensor.New(tensor.WithShape(batch.Len(), k), tensor.WithBacking(grad))); err != nil {
		return 0, err
	}
	if err := t.optimizer.Step(params); err != nil {
		return 0, err
	}
	return loss, nil
}

// evaluate scores both splits and captures the parameters they were scored with.
func (t *Trainer) evaluate(train, val hsi.Dataset) (Record, error) {
	trainAcc, err := Evaluate(t.model, train, t.evalBatchSize)
	if err != nil {
		return Record{}, errors.Wrap(err, "train accuracy")
	}
	valAcc, err := Evaluate(t.model, val, t.evalBatchSize)
	if err != nil {
		return Record{}, errors.Wrap(err, "validation accuracy")
	}
	return Record{
		TrainAcc: trainAcc,
		ValAcc:   valAcc,
		Snapshot: neuralnet.TakeSnapshot(t.model.Params()),
	}, nil
}

// SaveBest persists rec under BestModelName.
func SaveBest(store *checkpoint.Store, rec *Record) error {
	if rec == nil || rec.Snapshot == nil {
		return errors.New("no best model to save")
	}
	return store.Save(BestModelName, &checkpoint.Checkpoint{
		Weights: checkpoint.FromSnapshot(rec.Snapshot),
		TrainingState: checkpoint.TrainingState{
			Epoch:    rec.Epoch,
			Batch:    rec.Batch,
			Loss:     rec.Loss,
			TrainAcc: rec.TrainAcc,
			ValAcc:   rec.ValAcc,
		},
		Metadata: checkpoint.Metadata{Description: "best validation accuracy"},
	})
}

// LoadBest restores the saved best model into model.
func LoadBest(store *checkpoint.Store, model neuralnet.Model) (*Record, error) {
	c, err := store.Load(BestModelName)
	if err != nil {
		return nil, err
	}
	snap := c.ToSnapshot()
	if err := snap.Restore(model.Params()); err != nil {
		return nil, errors.Wrap(err, "checkpoint does not match model")
	}
	s := c.TrainingState
	return &Record{
		Epoch:    s.Epoch,
		Batch:    s.Batch,
		Loss:     s.Loss,
		TrainAcc: s.TrainAcc,
		ValAcc:   s.ValAcc,
		Snapshot: snap,
	}, nil
}
