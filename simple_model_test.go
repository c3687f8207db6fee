package electra

import (
	"testing"
)

func TestSimpleMLMForwardShapes(t *testing.T) {
	m := NewSimpleMLM(11, 8, 16, 11, 2, 1)
	b := testBatch(3, 6, 2, 11)
	out, err := m.Forward(b)
	if err != nil {
		t.Fatal(err)
	}
	if s := out.LogitsLM.Shape(); s[0] != 3 || s[1] != 2 || s[2] != 11 {
		t.Fatalf("logits_lm shape %v", s)
	}
	if s := out.LogitsCLSF.Shape(); s[0] != 3 || s[1] != 2 {
		t.Fatalf("logits_clsf shape %v", s)
	}
}

func TestSimpleMLMDeterministicInit(t *testing.T) {
	a := NewSimpleMLM(11, 8, 16, 11, 2, 42)
	b := NewSimpleMLM(11, 8, 16, 11, 2, 42)
	wa := a.StateDict()["embed"].Data().([]float32)
	wb := b.StateDict()["embed"].Data().([]float32)
	for i := range wa {
		if wa[i] != wb[i] {
			t.Fatal("same seed produced different weights")
		}
	}
}

func TestSimpleMLMParallelForwardMatchesSerial(t *testing.T) {
	m := NewSimpleMLM(11, 8, 16, 11, 2, 7)
	b := testBatch(4, 6, 2, 11)
	serial, err := m.Forward(b)
	if err != nil {
		t.Fatal(err)
	}
	m.To(Device{Name: "test", Workers: 4})
	parallel, err := m.Forward(b)
	if err != nil {
		t.Fatal(err)
	}
	sd := serial.LogitsLM.Data().([]float32)
	pd := parallel.LogitsLM.Data().([]float32)
	for i := range sd {
		if sd[i] != pd[i] {
			t.Fatal("parallel forward diverges from serial")
		}
	}
}

func TestSimpleMLMBackwardBeforeForward(t *testing.T) {
	m := NewSimpleMLM(11, 8, 16, 11, 2, 1)
	if err := m.Backward(f32Tensor(make([]float32, 22), 1, 2, 11), f32Tensor(make([]float32, 2), 1, 2)); err == nil {
		t.Fatal("expected error")
	}
}

func TestSimpleMLMRejectsBadIDs(t *testing.T) {
	m := NewSimpleMLM(5, 4, 4, 5, 2, 1)
	b := testBatch(1, 4, 1, 5)
	b.InputIDs.Data().([]int)[0] = 99
	if _, err := m.Forward(b); err == nil {
		t.Fatal("expected out-of-range token error")
	}
}

func TestSimpleMLMLoadStateDictMismatch(t *testing.T) {
	m := NewSimpleMLM(11, 8, 16, 11, 2, 1)
	other := NewSimpleMLM(11, 4, 16, 11, 2, 1)
	if err := m.LoadStateDict(other.StateDict()); err == nil {
		t.Fatal("expected shape mismatch error")
	}
	partial := m.StateDict()
	delete(partial, "w1")
	if err := m.LoadStateDict(partial); err == nil {
		t.Fatal("expected missing-param error")
	}
}

// TestTrainingReducesLoss drives the single-model strategy on one repeated
// batch and checks that the combined loss actually goes down.
func TestTrainingReducesLoss(t *testing.T) {
	cfg := Config{LR: 0.05}
	m := NewSimpleMLM(13, 8, 16, 13, 2, 3)
	step := NewModelStep(m, NewAdam(m, cfg), nil)
	b := testBatch(4, 8, 2, 13)

	var first, last float64
	const steps = 40
	for i := 0; i < steps; i++ {
		loss, err := step.Step(b, i)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = loss
		}
		if i == steps-1 {
			last = loss
		}
	}
	if last >= first {
		t.Fatalf("loss did not decrease: first %v, last %v", first, last)
	}
}
