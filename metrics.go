package electra

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

// MetricsWriter receives named scalar values at a global step. A nil writer
// anywhere in the harness means "no metrics".
type MetricsWriter interface {
	AddScalars(prefix string, values map[string]float64, step int)
}

type scalarRecord struct {
	Prefix string             `json:"prefix"`
	Step   int                `json:"step"`
	Values map[string]float64 `json:"values"`
}

// JSONLWriter appends one JSON object per AddScalars call to a file, so a
// run's metrics can be inspected or plotted afterwards.
type JSONLWriter struct {
	f   *os.File
	enc *json.Encoder
}

// NewJSONLWriter creates (or truncates) the metrics file at path.
func NewJSONLWriter(path string) (*JSONLWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating metrics file: %w", err)
	}
	return &JSONLWriter{f: f, enc: json.NewEncoder(f)}, nil
}

func (w *JSONLWriter) AddScalars(prefix string, values map[string]float64, step int) {
	// An unwritable metrics line is not worth aborting a training run over.
	_ = w.enc.Encode(scalarRecord{Prefix: prefix, Step: step, Values: values})
}

func (w *JSONLWriter) Close() error {
	return w.f.Close()
}

// LogWriter forwards scalars to a structured logger at debug level.
type LogWriter struct {
	l *log.Logger
}

func NewLogWriter(l *log.Logger) *LogWriter {
	return &LogWriter{l: l}
}

func (w *LogWriter) AddScalars(prefix string, values map[string]float64, step int) {
	kv := make([]interface{}, 0, 2+2*len(values))
	kv = append(kv, "step", step)
	for k, v := range values {
		kv = append(kv, k, v)
	}
	w.l.Debug(prefix, kv...)
}
