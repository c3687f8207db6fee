package electra

// Shared fakes and fixtures for the harness tests.

import (
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func intTensor(data []int, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func f32Tensor(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// testBatch builds a deterministic, fully weighted batch.
func testBatch(b, s, m, vocab int) *Batch {
	ids := make([]int, b*s)
	segs := make([]int, b*s)
	mask := make([]float32, b*s)
	for i := range ids {
		ids[i] = (i*7 + 3) % vocab
		if i%s >= s/2 {
			segs[i] = 1
		}
		mask[i] = 1
	}
	mpos := make([]int, b*m)
	mids := make([]int, b*m)
	weights := make([]float32, b*m)
	for i := range mpos {
		pos := (i * 3) % s
		mpos[i] = pos
		mids[i] = ids[(i/m)*s+pos]
		weights[i] = 1
	}
	isNext := make([]int, b)
	for i := range isNext {
		isNext[i] = i % 2
	}
	return &Batch{
		InputIDs:        intTensor(ids, b, s),
		SegmentIDs:      intTensor(segs, b, s),
		InputMask:       f32Tensor(mask, b, s),
		MaskedIDs:       intTensor(mids, b, m),
		MaskedPositions: intTensor(mpos, b, m),
		MaskedWeights:   f32Tensor(weights, b, m),
		IsNext:          intTensor(isNext, b),
	}
}

// stubModel returns canned logits and records harness calls.
type stubModel struct {
	out       *Output
	forwards  int
	backwards int
	zeroed    int

	lastDLM   *tensor.Dense
	lastDCLSF *tensor.Dense
	state     map[string]*tensor.Dense
	dev       Device
}

func (m *stubModel) Forward(*Batch) (*Output, error) {
	m.forwards++
	return m.out, nil
}

func (m *stubModel) Backward(dLM, dCLSF *tensor.Dense) error {
	m.backwards++
	m.lastDLM, m.lastDCLSF = dLM, dCLSF
	return nil
}

func (m *stubModel) Params() []gorgonia.ValueGrad { return nil }

func (m *stubModel) ZeroGrad() { m.zeroed++ }

func (m *stubModel) StateDict() map[string]*tensor.Dense {
	if m.state == nil {
		m.state = map[string]*tensor.Dense{"w": f32Tensor([]float32{1}, 1)}
	}
	return m.state
}

func (m *stubModel) LoadStateDict(state map[string]*tensor.Dense) error {
	m.state = state
	return nil
}

func (m *stubModel) To(dev Device) { m.dev = dev }

// paramModel exposes real parameters so optimizers can be exercised without
// a full model.
type paramModel struct {
	stubModel
	params []*Param
}

func (m *paramModel) Params() []gorgonia.ValueGrad {
	out := make([]gorgonia.ValueGrad, len(m.params))
	for i, p := range m.params {
		out[i] = p
	}
	return out
}

// fixedOpt reports a constant learning rate and counts steps.
type fixedOpt struct {
	lr    float64
	steps int
}

func (o *fixedOpt) Step() error           { o.steps++; return nil }
func (o *fixedOpt) LearningRate() float64 { return o.lr }

// recordWriter captures AddScalars calls.
type scalarCall struct {
	prefix string
	values map[string]float64
	step   int
}

type recordWriter struct {
	calls []scalarCall
}

func (w *recordWriter) AddScalars(prefix string, values map[string]float64, step int) {
	w.calls = append(w.calls, scalarCall{prefix: prefix, values: values, step: step})
}

// countStep is a TrainStep that records the global steps it was handed.
type countStep struct {
	model     *stubModel
	stepsSeen []int
	restored  string
	loss      float64
}

func newCountStep() *countStep {
	return &countStep{model: &stubModel{}, loss: 1}
}

func (s *countStep) Step(_ *Batch, globalStep int) (float64, error) {
	s.stepsSeen = append(s.stepsSeen, globalStep)
	return s.loss, nil
}

func (s *countStep) Checkpoints() []Checkpoint {
	return []Checkpoint{{Model: s.model}}
}

func (s *countStep) Restore(path string) error {
	s.restored = path
	return nil
}

func (s *countStep) EvalModel() Model { return s.model }

// countingIter counts how many batches were actually handed out.
type countingIter struct {
	inner  DataIterator
	yields int
}

func (it *countingIter) Reset() { it.inner.Reset() }

func (it *countingIter) Next() (*Batch, bool) {
	b, ok := it.inner.Next()
	if ok {
		it.yields++
	}
	return b, ok
}
