package electra

import (
	"fmt"
	"path/filepath"

	"gorgonia.org/tensor"
)

// Names of the two checkpoint sub-directories written by the adversarial
// strategy.
const (
	GeneratorDir     = "generator"
	DiscriminatorDir = "discriminator"
)

// AdversarialStep is the ELECTRA-style strategy. Each step trains the
// generator on the masked-LM objective, derives replacement-detection labels
// from its predictions, and trains the discriminator to recover those labels
// from the same input.
type AdversarialStep struct {
	generator     Model
	discriminator Model
	gOpt, dOpt    Optimizer
	crit          Criteria
	metrics       MetricsWriter
	prefix        string
}

func NewAdversarialStep(generator, discriminator Model, gOpt, dOpt Optimizer, metrics MetricsWriter) *AdversarialStep {
	return &AdversarialStep{
		generator:     generator,
		discriminator: discriminator,
		gOpt:          gOpt,
		dOpt:          dOpt,
		crit:          NewCrossEntropyCriteria(),
		metrics:       metrics,
		prefix:        "electra",
	}
}

// Step runs the linked generator and discriminator sub-steps. The returned
// loss is the generator's, which the trainer tracks for epoch averaging.
func (s *AdversarialStep) Step(b *Batch, globalStep int) (float64, error) {
	s.generator.ZeroGrad()
	gl, err := GeneratorLoss(s.generator, b, globalStep, s.gOpt, s.crit, s.metrics, s.prefix)
	if err != nil {
		return 0, fmt.Errorf("generator: %w", err)
	}
	if err := s.generator.Backward(gl.DLogitsLM, gl.DLogitsCLSF); err != nil {
		return 0, fmt.Errorf("generator: %w", err)
	}
	if err := s.gOpt.Step(); err != nil {
		return 0, fmt.Errorf("generator: %w", err)
	}

	labels, err := ReplacementLabels(gl.LogitsLM, b.MaskedIDs)
	if err != nil {
		return 0, err
	}
	db := b.WithMaskedIDs(labels)

	s.discriminator.ZeroGrad()
	dl, err := DiscriminatorLoss(s.discriminator, db, globalStep, s.dOpt, s.crit, s.metrics, s.prefix)
	if err != nil {
		return 0, fmt.Errorf("discriminator: %w", err)
	}
	if err := s.discriminator.Backward(dl.DLogitsLM, dl.DLogitsCLSF); err != nil {
		return 0, fmt.Errorf("discriminator: %w", err)
	}
	if err := s.dOpt.Step(); err != nil {
		return 0, fmt.Errorf("discriminator: %w", err)
	}
	return gl.Total, nil
}

// ReplacementLabels derives the discriminator's supervision from the
// generator's LM logits: label 1 where the arg-max predicted token equals
// the true masked id (the generator reconstructed the token), else 0.
func ReplacementLabels(logitsLM, maskedIDs *tensor.Dense) (*tensor.Dense, error) {
	am, err := tensor.Argmax(logitsLM, 2)
	if err != nil {
		return nil, fmt.Errorf("replacement labels: %w", err)
	}
	pred := am.Data().([]int)
	truth := maskedIDs.Data().([]int)
	if len(pred) != len(truth) {
		return nil, fmt.Errorf("replacement labels: %d predictions for %d targets", len(pred), len(truth))
	}
	labels := make([]int, len(truth))
	for i := range truth {
		if pred[i] == truth[i] {
			labels[i] = 1
		}
	}
	return tensor.New(tensor.WithShape(maskedIDs.Shape()...), tensor.WithBacking(labels)), nil
}

// Checkpoints persists both networks, each under its own sub-directory.
func (s *AdversarialStep) Checkpoints() []Checkpoint {
	return []Checkpoint{
		{Name: GeneratorDir, Model: s.generator},
		{Name: DiscriminatorDir, Model: s.discriminator},
	}
}

// Restore loads both networks from a checkpoint directory previously written
// by the trainer (the backbone file of each sub-directory).
func (s *AdversarialStep) Restore(dir string) error {
	pairs := []struct {
		name  string
		model Model
	}{
		{GeneratorDir, s.generator},
		{DiscriminatorDir, s.discriminator},
	}
	for _, p := range pairs {
		state, err := LoadStateDict(filepath.Join(dir, p.name, backboneFile))
		if err != nil {
			return err
		}
		if err := p.model.LoadStateDict(state); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return nil
}

// EvalModel returns the discriminator: it is the network ELECTRA pretraining
// exists to produce.
func (s *AdversarialStep) EvalModel() Model { return s.discriminator }
