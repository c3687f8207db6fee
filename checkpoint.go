package electra

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gorgonia.org/tensor"
)

const backboneFile = "backbone.pt"

// Checkpoint names a model for persistence. An empty name places the files
// directly in the save directory; a non-empty name adds a sub-directory, so
// the adversarial pair can live side by side.
type Checkpoint struct {
	Name  string
	Model Model
}

// Describer is implemented by models that can report their architecture
// dimensions for full snapshots.
type Describer interface {
	Arch() map[string]int
}

type snapshotFile struct {
	Arch  map[string]int
	State map[string]*tensor.Dense
}

// SaveCheckpoint persists a model into dir: backbone.pt carries the full
// snapshot and is overwritten on every save; model_steps_<step>.pt carries
// the parameter state only and is never overwritten (step numbers are unique
// within a run).
func SaveCheckpoint(dir string, m Model, step int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir: %w", err)
	}
	state := m.StateDict()
	var arch map[string]int
	if d, ok := m.(Describer); ok {
		arch = d.Arch()
	}
	if err := writeSnapshot(filepath.Join(dir, backboneFile), snapshotFile{Arch: arch, State: state}); err != nil {
		return err
	}
	stepFile := filepath.Join(dir, fmt.Sprintf("model_steps_%d.pt", step))
	return writeSnapshot(stepFile, snapshotFile{State: state})
}

func writeSnapshot(path string, snap snapshotFile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		return fmt.Errorf("encoding checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadSnapshot reads a checkpoint file, returning the architecture map (nil
// for state-only files) and the state dict.
func LoadSnapshot(path string) (map[string]int, map[string]*tensor.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()
	var snap snapshotFile
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	return snap.Arch, snap.State, nil
}

// LoadStateDict reads the state dict from either checkpoint file form.
func LoadStateDict(path string) (map[string]*tensor.Dense, error) {
	_, state, err := LoadSnapshot(path)
	return state, err
}
