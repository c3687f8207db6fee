package electra

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// TrainStep is the strategy a Trainer drives: one optimization step per
// batch, plus the set of models to checkpoint, restore and evaluate. The
// single-model and adversarial loops differ only in their strategy.
type TrainStep interface {
	// Step runs one full optimization step on the batch and returns the
	// loss tracked for epoch averaging.
	Step(b *Batch, globalStep int) (float64, error)
	Checkpoints() []Checkpoint
	Restore(path string) error
	EvalModel() Model
}

// EvalFunc scores one batch during evaluation, returning an accuracy for
// progress reporting and an arbitrary per-batch result.
type EvalFunc func(m Model, b *Batch) (accuracy float64, result interface{}, err error)

// Trainer owns the epoch/step loop: global-step bookkeeping, checkpoint
// cadence, early termination on total_steps and epoch loss reporting.
type Trainer struct {
	cfg     Config
	step    TrainStep
	data    DataIterator
	saveDir string
	device  Device
	logger  *log.Logger

	globalStep int
}

// NewTrainer wires a loop driver. A nil logger falls back to stderr.
func NewTrainer(cfg Config, step TrainStep, data DataIterator, saveDir string, device Device, logger *log.Logger) *Trainer {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Trainer{cfg: cfg, step: step, data: data, saveDir: saveDir, device: device, logger: logger}
}

// GlobalStep reports the number of batches processed since the run started.
// It increases by exactly one per batch and is never reset.
func (t *Trainer) GlobalStep() int { return t.globalStep }

// Train runs the full loop. resumeFrom optionally names a checkpoint to
// restore before training; an empty path is a cold start. If total_steps is
// configured, the run saves and stops as soon as that many batches have been
// processed, regardless of remaining epochs.
func (t *Trainer) Train(resumeFrom string) error {
	if resumeFrom != "" {
		t.logger.Info("restoring checkpoint", "from", resumeFrom)
		if err := t.step.Restore(resumeFrom); err != nil {
			return err
		}
	}
	for _, c := range t.step.Checkpoints() {
		c.Model.To(t.device)
	}

	for e := 0; e < t.cfg.Epochs; e++ {
		t.data.Reset()
		var lossSum float64
		batches := 0
		for {
			b, ok := t.data.Next()
			if !ok {
				break
			}
			loss, err := t.step.Step(b, t.globalStep)
			if err != nil {
				return fmt.Errorf("step %d: %w", t.globalStep, err)
			}
			t.globalStep++
			lossSum += loss
			batches++

			if t.savePoint() {
				if err := t.saveAll(); err != nil {
					return err
				}
			}
			if t.cfg.TotalSteps > 0 && t.globalStep >= t.cfg.TotalSteps {
				t.logEpoch(e, lossSum, batches)
				t.logger.Info("total steps reached", "step", t.globalStep)
				if !t.savePoint() {
					return t.saveAll()
				}
				return nil
			}
		}
		t.logEpoch(e, lossSum, batches)
	}
	if t.globalStep == 0 || !t.savePoint() {
		return t.saveAll()
	}
	return nil
}

// Eval restores an optional state dict into the strategy's eval model and
// runs the supplied function over one pass of the iterator. Nothing is
// persisted.
func (t *Trainer) Eval(fn EvalFunc, modelFile string) ([]interface{}, error) {
	m := t.step.EvalModel()
	if modelFile != "" {
		t.logger.Info("loading model", "from", modelFile)
		state, err := LoadStateDict(modelFile)
		if err != nil {
			return nil, err
		}
		if err := m.LoadStateDict(state); err != nil {
			return nil, err
		}
	}
	m.To(t.device)

	t.data.Reset()
	var results []interface{}
	for {
		b, ok := t.data.Next()
		if !ok {
			break
		}
		acc, res, err := fn(m, b)
		if err != nil {
			return nil, fmt.Errorf("eval batch %d: %w", len(results), err)
		}
		t.logger.Debug("eval", "batch", len(results), "accuracy", acc)
		results = append(results, res)
	}
	return results, nil
}

// savePoint reports whether the current global step falls on the configured
// checkpoint cadence.
func (t *Trainer) savePoint() bool {
	return t.cfg.SaveSteps > 0 && t.globalStep > 0 && t.globalStep%t.cfg.SaveSteps == 0
}

func (t *Trainer) saveAll() error {
	for _, c := range t.step.Checkpoints() {
		dir := t.saveDir
		if c.Name != "" {
			dir = filepath.Join(dir, c.Name)
		}
		if err := SaveCheckpoint(dir, c.Model, t.globalStep); err != nil {
			return err
		}
	}
	t.logger.Info("checkpoint saved", "step", t.globalStep, "dir", t.saveDir)
	return nil
}

func (t *Trainer) logEpoch(epoch int, lossSum float64, batches int) {
	if batches == 0 {
		batches = 1
	}
	t.logger.Info("epoch complete",
		"epoch", epoch+1,
		"epochs", t.cfg.Epochs,
		"avg_loss", lossSum/float64(batches),
	)
}
