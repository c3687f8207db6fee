package electra

import (
	"fmt"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Output carries the two heads a pretraining model produces: masked-token
// logits [B, M, V] and sentence-pair classification logits [B, C].
type Output struct {
	LogitsLM   *tensor.Dense
	LogitsCLSF *tensor.Dense
}

// Model is the trainable collaborator the harness drives. Forward consumes a
// batch and produces logits; Backward accumulates parameter gradients from
// the loss dlogits; Params exposes the weights as gorgonia ValueGrads so any
// solver can step them.
type Model interface {
	Forward(b *Batch) (*Output, error)
	Backward(dLM, dCLSF *tensor.Dense) error
	Params() []gorgonia.ValueGrad
	ZeroGrad()
	StateDict() map[string]*tensor.Dense
	LoadStateDict(state map[string]*tensor.Dense) error
	To(dev Device)
}

// Optimizer updates a model's parameters from their accumulated gradients.
type Optimizer interface {
	Step() error
	LearningRate() float64
}

// Param is a named weight/gradient pair. It satisfies gorgonia.ValueGrad, so
// gorgonia solvers can update the weights in place.
type Param struct {
	Name string
	W    *tensor.Dense
	G    *tensor.Dense
}

// NewParam allocates a parameter with a zeroed gradient of the same shape.
func NewParam(name string, w *tensor.Dense) *Param {
	g := tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(w.Shape()...))
	return &Param{Name: name, W: w, G: g}
}

// Value implements gorgonia.Valuer.
func (p *Param) Value() gorgonia.Value { return p.W }

// Grad implements gorgonia.ValueGrad.
func (p *Param) Grad() (gorgonia.Value, error) { return p.G, nil }

// Zero clears the accumulated gradient.
func (p *Param) Zero() {
	g := p.G.Data().([]float32)
	for i := range g {
		g[i] = 0
	}
}

// copyInto copies src values into the parameter weights, checking shape.
func (p *Param) copyInto(src *tensor.Dense) error {
	if !p.W.Shape().Eq(src.Shape()) {
		return fmt.Errorf("param %s: shape %v does not match checkpoint shape %v", p.Name, p.W.Shape(), src.Shape())
	}
	copy(p.W.Data().([]float32), src.Data().([]float32))
	return nil
}
