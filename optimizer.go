package electra

import (
	"fmt"
	"math"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Adam is a bias-corrected Adam optimizer with optional gradient clipping
// and a linear learning-rate warmup from zero over Config.WarmupSteps().
type Adam struct {
	params []gorgonia.ValueGrad
	m, v   [][]float32
	t      int

	peak   float64
	warmup int

	beta1, beta2, eps float32
	clip              float32
}

// NewAdam builds an Adam optimizer over the model's parameters, taking the
// peak learning rate and warmup span from the config.
func NewAdam(model Model, cfg Config) *Adam {
	params := model.Params()
	m := make([][]float32, len(params))
	v := make([][]float32, len(params))
	for i, p := range params {
		n := p.Value().Size()
		m[i] = make([]float32, n)
		v[i] = make([]float32, n)
	}
	return &Adam{
		params: params,
		m:      m,
		v:      v,
		peak:   cfg.LR,
		warmup: cfg.WarmupSteps(),
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		clip:   1.0,
	}
}

// schedule returns the learning rate applied at update t (1-based).
func (a *Adam) schedule(t int) float64 {
	if a.warmup > 0 && t <= a.warmup {
		return a.peak * float64(t) / float64(a.warmup)
	}
	return a.peak
}

// LearningRate reports the rate the next Step will apply.
func (a *Adam) LearningRate() float64 {
	return a.schedule(a.t + 1)
}

// Step applies one Adam update to every parameter from its accumulated
// gradient.
func (a *Adam) Step() error {
	a.t++
	lr := float32(a.schedule(a.t))
	b1t := 1 - float32(math.Pow(float64(a.beta1), float64(a.t)))
	b2t := 1 - float32(math.Pow(float64(a.beta2), float64(a.t)))

	for i, p := range a.params {
		w, ok := p.Value().(*tensor.Dense)
		if !ok {
			return fmt.Errorf("adam: param %d is not a dense tensor", i)
		}
		gv, err := p.Grad()
		if err != nil {
			return fmt.Errorf("adam: param %d: %w", i, err)
		}
		g, ok := gv.(*tensor.Dense)
		if !ok {
			return fmt.Errorf("adam: gradient %d is not a dense tensor", i)
		}
		wd := w.Data().([]float32)
		gd := g.Data().([]float32)
		if len(wd) != len(gd) {
			return fmt.Errorf("adam: param %d: weight size %d, gradient size %d", i, len(wd), len(gd))
		}
		mi, vi := a.m[i], a.v[i]
		for j := range wd {
			gj := gd[j]
			if a.clip > 0 {
				if gj > a.clip {
					gj = a.clip
				} else if gj < -a.clip {
					gj = -a.clip
				}
			}
			mi[j] = a.beta1*mi[j] + (1-a.beta1)*gj
			vi[j] = a.beta2*vi[j] + (1-a.beta2)*gj*gj
			mh := mi[j] / b1t
			vh := vi[j] / b2t
			wd[j] -= lr * mh / (float32(math.Sqrt(float64(vh))) + a.eps)
		}
	}
	return nil
}

// SolverOptimizer adapts any gorgonia solver to the Optimizer interface, so
// the loop drivers can run on gorgonia's stock update rules.
type SolverOptimizer struct {
	solver gorgonia.Solver
	model  Model
	lr     float64
}

func NewSolverOptimizer(solver gorgonia.Solver, model Model, lr float64) *SolverOptimizer {
	return &SolverOptimizer{solver: solver, model: model, lr: lr}
}

func (o *SolverOptimizer) Step() error {
	return o.solver.Step(o.model.Params())
}

func (o *SolverOptimizer) LearningRate() float64 { return o.lr }
