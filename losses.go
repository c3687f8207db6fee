package electra

import (
	"fmt"

	"gorgonia.org/tensor"
)

// LossSet is the result of one loss evaluation: the masked-LM component, the
// sentence component, their sum, the raw LM logits (the adversarial step
// derives replacement labels from them), and the dlogits ready for Backward.
type LossSet struct {
	LM       float64
	Sentence float64
	Total    float64

	LogitsLM    *tensor.Dense
	DLogitsLM   *tensor.Dense
	DLogitsCLSF *tensor.Dense
}

// GeneratorLoss computes the combined masked-LM + sentence loss for the
// generator and, when a writer is present, records its scalars under
// <prefix>/G at the given global step.
func GeneratorLoss(m Model, b *Batch, globalStep int, opt Optimizer, crit Criteria, w MetricsWriter, prefix string) (*LossSet, error) {
	ls, err := modelLoss(m, b, crit)
	if err != nil {
		return nil, err
	}
	emitLoss(w, prefix+"/G", ls, opt, globalStep)
	return ls, nil
}

// DiscriminatorLoss is the same objective evaluated for the discriminator;
// scalars go under <prefix>/D.
func DiscriminatorLoss(m Model, b *Batch, globalStep int, opt Optimizer, crit Criteria, w MetricsWriter, prefix string) (*LossSet, error) {
	ls, err := modelLoss(m, b, crit)
	if err != nil {
		return nil, err
	}
	emitLoss(w, prefix+"/D", ls, opt, globalStep)
	return ls, nil
}

// modelLoss runs the forward pass and evaluates both criteria. The per-token
// losses are weighted elementwise by MaskedWeights (zero marks a padding
// slot) and averaged over all B*M slots; the dlogits are scaled the same way
// so Backward sees gradients consistent with the reported loss.
func modelLoss(m Model, b *Batch, crit Criteria) (*LossSet, error) {
	out, err := m.Forward(b)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}

	tl, err := crit.Token(out.LogitsLM, b.MaskedIDs)
	if err != nil {
		return nil, err
	}
	weights := b.MaskedWeights.Data().([]float32)
	perPos := tl.PerPosition.Data().([]float32)
	if len(weights) != len(perPos) {
		return nil, fmt.Errorf("masked weights %v do not match loss shape %v", b.MaskedWeights.Shape(), tl.PerPosition.Shape())
	}
	n := len(perPos)
	var lossLM float64
	for i, w := range weights {
		lossLM += float64(w * perPos[i])
	}
	lossLM /= float64(n)

	dl := tl.DLogits.Data().([]float32)
	v := tl.DLogits.Shape()[2]
	for i, w := range weights {
		scale := w / float32(n)
		row := dl[i*v : (i+1)*v]
		for j := range row {
			row[j] *= scale
		}
	}

	sl, err := crit.Sentence(out.LogitsCLSF, b.IsNext)
	if err != nil {
		return nil, err
	}

	return &LossSet{
		LM:          lossLM,
		Sentence:    sl.Mean,
		Total:       lossLM + sl.Mean,
		LogitsLM:    out.LogitsLM,
		DLogitsLM:   tl.DLogits,
		DLogitsCLSF: sl.DLogits,
	}, nil
}

func emitLoss(w MetricsWriter, prefix string, ls *LossSet, opt Optimizer, globalStep int) {
	if w == nil {
		return
	}
	scalars := map[string]float64{
		"loss_lm":    ls.LM,
		"loss_sop":   ls.Sentence,
		"loss_total": ls.Total,
	}
	if opt != nil {
		scalars["lr"] = opt.LearningRate()
	}
	w.AddScalars(prefix, scalars, globalStep)
}
