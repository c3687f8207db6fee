package electra

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the pretraining hyperparameters. It is loaded once at startup
// and never mutated afterwards; checkpoint cadence and early termination are
// both driven by it.
type Config struct {
	Seed       int     `json:"seed"`
	BatchSize  int     `json:"batch_size"`
	LR         float64 `json:"lr"`
	Epochs     int     `json:"n_epochs"`
	Warmup     float64 `json:"warmup"`
	SaveSteps  int     `json:"save_steps"`
	TotalSteps int     `json:"total_steps"`
}

// DefaultConfig returns the standard pretraining hyperparameters.
func DefaultConfig() Config {
	return Config{
		Seed:       3431,
		BatchSize:  8,
		LR:         5e-5,
		Epochs:     10,
		Warmup:     0.1,
		SaveSteps:  100,
		TotalSteps: 100000,
	}
}

var configKeys = []string{
	"seed", "batch_size", "lr", "n_epochs", "warmup", "save_steps", "total_steps",
}

// ConfigFromJSON loads a Config from a JSON file. The file must contain
// exactly the keys of Config: a missing or unknown key is a load failure.
func ConfigFromJSON(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	for _, k := range configKeys {
		if _, ok := fields[k]; !ok {
			return cfg, fmt.Errorf("config %s: missing key %q", path, k)
		}
	}
	if len(fields) != len(configKeys) {
		for k := range fields {
			known := false
			for _, want := range configKeys {
				if k == want {
					known = true
					break
				}
			}
			if !known {
				return cfg, fmt.Errorf("config %s: unknown key %q", path, k)
			}
		}
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// WarmupSteps converts the warmup fraction into a step count. The learning
// rate ramps linearly from zero to the configured peak over this many steps.
func (c Config) WarmupSteps() int {
	return int(c.Warmup * float64(c.TotalSteps))
}
