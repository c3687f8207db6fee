package electra

import (
	"os"
	"path/filepath"
	"testing"
)

func makeBatches(n int) []*Batch {
	out := make([]*Batch, n)
	for i := range out {
		out[i] = testBatch(2, 6, 2, 11)
	}
	return out
}

func stepFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "model_steps_*.pt"))
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func TestGlobalStepMonotonic(t *testing.T) {
	dir := t.TempDir()
	step := newCountStep()
	cfg := Config{Epochs: 2, SaveSteps: 100}
	tr := NewTrainer(cfg, step, NewBatches(makeBatches(3)), dir, Device{Workers: 1}, nil)
	if err := tr.Train(""); err != nil {
		t.Fatal(err)
	}
	// The strategy sees the pre-increment step: 0..5 across both epochs.
	want := []int{0, 1, 2, 3, 4, 5}
	if len(step.stepsSeen) != len(want) {
		t.Fatalf("saw %d steps, want %d", len(step.stepsSeen), len(want))
	}
	for i, s := range step.stepsSeen {
		if s != want[i] {
			t.Fatalf("stepsSeen[%d] = %d, want %d", i, s, want[i])
		}
	}
	if tr.GlobalStep() != 6 {
		t.Fatalf("GlobalStep = %d, want 6", tr.GlobalStep())
	}
}

func TestCheckpointCadence(t *testing.T) {
	dir := t.TempDir()
	step := newCountStep()
	cfg := Config{Epochs: 1, SaveSteps: 2}
	tr := NewTrainer(cfg, step, NewBatches(makeBatches(5)), dir, Device{Workers: 1}, nil)
	if err := tr.Train(""); err != nil {
		t.Fatal(err)
	}
	// Cadence saves at 2 and 4, final save at 5.
	for _, n := range []string{"model_steps_2.pt", "model_steps_4.pt", "model_steps_5.pt", "backbone.pt"} {
		if _, err := os.Stat(filepath.Join(dir, n)); err != nil {
			t.Fatalf("missing %s: %v", n, err)
		}
	}
	if got := stepFiles(t, dir); len(got) != 3 {
		t.Fatalf("got %d step files %v, want 3", len(got), got)
	}
}

func TestFinalSaveOnly(t *testing.T) {
	dir := t.TempDir()
	step := newCountStep()
	cfg := Config{Epochs: 1, SaveSteps: 100}
	tr := NewTrainer(cfg, step, NewBatches(makeBatches(2)), dir, Device{Workers: 1}, nil)
	if err := tr.Train(""); err != nil {
		t.Fatal(err)
	}
	got := stepFiles(t, dir)
	if len(got) != 1 || filepath.Base(got[0]) != "model_steps_2.pt" {
		t.Fatalf("got step files %v, want only model_steps_2.pt", got)
	}
}

// TestTotalStepsScenario is the end-to-end contract: with save_steps=1 and
// total_steps=3, a run over more than three available batches produces
// exactly three checkpoints and never requests a fourth batch.
func TestTotalStepsScenario(t *testing.T) {
	path := writeConfig(t, `{"seed":1,"batch_size":2,"lr":0.1,"n_epochs":1,"warmup":0.1,"save_steps":1,"total_steps":3}`)
	cfg, err := ConfigFromJSON(path)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	step := newCountStep()
	data := &countingIter{inner: NewBatches(makeBatches(5))}
	tr := NewTrainer(cfg, step, data, dir, Device{Workers: 1}, nil)
	if err := tr.Train(""); err != nil {
		t.Fatal(err)
	}
	if data.yields != 3 {
		t.Fatalf("iterator yielded %d batches, want 3", data.yields)
	}
	if tr.GlobalStep() != 3 {
		t.Fatalf("GlobalStep = %d, want 3", tr.GlobalStep())
	}
	if got := stepFiles(t, dir); len(got) != 3 {
		t.Fatalf("got %d step files %v, want 3", len(got), got)
	}
	if _, err := os.Stat(filepath.Join(dir, "model_steps_4.pt")); !os.IsNotExist(err) {
		t.Fatal("a fourth checkpoint exists; training overran total_steps")
	}
}

func TestTrainMovesModelToDevice(t *testing.T) {
	step := newCountStep()
	dev := Device{Name: "test", Workers: 4}
	tr := NewTrainer(Config{Epochs: 1, SaveSteps: 1}, step, NewBatches(makeBatches(1)), t.TempDir(), dev, nil)
	if err := tr.Train(""); err != nil {
		t.Fatal(err)
	}
	if step.model.dev.Workers != 4 {
		t.Fatalf("model device = %+v, want workers 4", step.model.dev)
	}
}

func TestTrainRestores(t *testing.T) {
	step := newCountStep()
	tr := NewTrainer(Config{Epochs: 1, SaveSteps: 1}, step, NewBatches(makeBatches(1)), t.TempDir(), Device{Workers: 1}, nil)
	if err := tr.Train("some/checkpoint"); err != nil {
		t.Fatal(err)
	}
	if step.restored != "some/checkpoint" {
		t.Fatalf("restored = %q", step.restored)
	}
}

func TestEvalCollectsResults(t *testing.T) {
	dir := t.TempDir()
	step := newCountStep()
	tr := NewTrainer(Config{Epochs: 1, SaveSteps: 1}, step, NewBatches(makeBatches(3)), dir, Device{Workers: 1}, nil)

	n := 0
	results, err := tr.Eval(func(m Model, b *Batch) (float64, interface{}, error) {
		n++
		return 1.0, n, nil
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[2].(int) != 3 {
		t.Fatalf("results out of order: %v", results)
	}
	// Eval never persists anything.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("eval wrote files: %v", entries)
	}
}

func TestBatchesIterator(t *testing.T) {
	it := NewBatches(makeBatches(2))
	var count int
	for {
		if _, ok := it.Next(); !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Fatalf("first pass yielded %d", count)
	}
	if _, ok := it.Next(); ok {
		t.Fatal("exhausted iterator yielded a batch")
	}
	it.Reset()
	if _, ok := it.Next(); !ok {
		t.Fatal("reset iterator yielded nothing")
	}
}
