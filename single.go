package electra

// ModelStep is the single-model pretraining strategy: zero gradients,
// combined loss, backward, optimizer step.
type ModelStep struct {
	model   Model
	opt     Optimizer
	crit    Criteria
	metrics MetricsWriter
	prefix  string
}

func NewModelStep(model Model, opt Optimizer, metrics MetricsWriter) *ModelStep {
	return &ModelStep{
		model:   model,
		opt:     opt,
		crit:    NewCrossEntropyCriteria(),
		metrics: metrics,
		prefix:  "pretrain",
	}
}

func (s *ModelStep) Step(b *Batch, globalStep int) (float64, error) {
	s.model.ZeroGrad()
	ls, err := DiscriminatorLoss(s.model, b, globalStep, s.opt, s.crit, s.metrics, s.prefix)
	if err != nil {
		return 0, err
	}
	if err := s.model.Backward(ls.DLogitsLM, ls.DLogitsCLSF); err != nil {
		return 0, err
	}
	if err := s.opt.Step(); err != nil {
		return 0, err
	}
	return ls.Total, nil
}

func (s *ModelStep) Checkpoints() []Checkpoint {
	return []Checkpoint{{Model: s.model}}
}

// Restore loads a state-dict checkpoint file into the model.
func (s *ModelStep) Restore(path string) error {
	state, err := LoadStateDict(path)
	if err != nil {
		return err
	}
	return s.model.LoadStateDict(state)
}

func (s *ModelStep) EvalModel() Model { return s.model }
