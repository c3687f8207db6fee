package electra

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// TokenLoss is the result of a per-token criterion: the unreduced loss per
// masked slot and the matching dlogits (softmax minus one-hot, unscaled).
type TokenLoss struct {
	PerPosition *tensor.Dense // [B, M] float32
	DLogits     *tensor.Dense // [B, M, V] float32
}

// SentenceLoss is the result of a sentence-level criterion: the mean loss
// over the batch and dlogits already scaled by 1/B.
type SentenceLoss struct {
	Mean    float64
	DLogits *tensor.Dense // [B, C] float32
}

// TokenCriterion scores [B, M, V] logits against [B, M] integer targets
// without reduction.
type TokenCriterion func(logits, targets *tensor.Dense) (*TokenLoss, error)

// SentenceCriterion scores [B, C] logits against [B] integer targets with
// mean reduction.
type SentenceCriterion func(logits, targets *tensor.Dense) (*SentenceLoss, error)

// Criteria bundles the two loss criteria the pretraining objectives need.
type Criteria struct {
	Token    TokenCriterion
	Sentence SentenceCriterion
}

// NewCrossEntropyCriteria returns the standard pair: per-token cross-entropy
// with no reduction and sentence cross-entropy with mean reduction.
func NewCrossEntropyCriteria() Criteria {
	return Criteria{Token: PerTokenCrossEntropy, Sentence: SentenceCrossEntropy}
}

// rowSoftmax computes a numerically stable softmax over one logit row.
func rowSoftmax(logits []float32) []float32 {
	maxv := float32(math.Inf(-1))
	for _, v := range logits {
		if v > maxv {
			maxv = v
		}
	}
	sum := float32(0)
	out := make([]float32, len(logits))
	for i, v := range logits {
		e := float32(math.Exp(float64(v - maxv)))
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// PerTokenCrossEntropy computes cross-entropy per masked slot. Targets must
// be integers in [0, V).
func PerTokenCrossEntropy(logits, targets *tensor.Dense) (*TokenLoss, error) {
	ls := logits.Shape()
	if len(ls) != 3 {
		return nil, fmt.Errorf("token cross-entropy: want [B, M, V] logits, got %v", ls)
	}
	b, m, v := ls[0], ls[1], ls[2]
	ts := targets.Shape()
	if len(ts) != 2 || ts[0] != b || ts[1] != m {
		return nil, fmt.Errorf("token cross-entropy: targets %v do not match logits %v", ts, ls)
	}
	ld := logits.Data().([]float32)
	td := targets.Data().([]int)

	ce := make([]float32, b*m)
	dl := make([]float32, b*m*v)
	for i := 0; i < b*m; i++ {
		t := td[i]
		if t < 0 || t >= v {
			return nil, fmt.Errorf("token cross-entropy: target %d out of range [0, %d)", t, v)
		}
		p := rowSoftmax(ld[i*v : (i+1)*v])
		ce[i] = float32(-math.Log(math.Max(1e-12, float64(p[t]))))
		copy(dl[i*v:(i+1)*v], p)
		dl[i*v+t] -= 1
	}
	return &TokenLoss{
		PerPosition: tensor.New(tensor.WithShape(b, m), tensor.WithBacking(ce)),
		DLogits:     tensor.New(tensor.WithShape(b, m, v), tensor.WithBacking(dl)),
	}, nil
}

// SentenceCrossEntropy computes mean cross-entropy over the batch for the
// sentence-pair classification head.
func SentenceCrossEntropy(logits, targets *tensor.Dense) (*SentenceLoss, error) {
	ls := logits.Shape()
	if len(ls) != 2 {
		return nil, fmt.Errorf("sentence cross-entropy: want [B, C] logits, got %v", ls)
	}
	b, c := ls[0], ls[1]
	ts := targets.Shape()
	if len(ts) != 1 || ts[0] != b {
		return nil, fmt.Errorf("sentence cross-entropy: targets %v do not match logits %v", ts, ls)
	}
	ld := logits.Data().([]float32)
	td := targets.Data().([]int)

	dl := make([]float32, b*c)
	var total float64
	for i := 0; i < b; i++ {
		t := td[i]
		if t < 0 || t >= c {
			return nil, fmt.Errorf("sentence cross-entropy: target %d out of range [0, %d)", t, c)
		}
		p := rowSoftmax(ld[i*c : (i+1)*c])
		total += -math.Log(math.Max(1e-12, float64(p[t])))
		for j := 0; j < c; j++ {
			dl[i*c+j] = p[j] / float32(b)
		}
		dl[i*c+t] -= 1 / float32(b)
	}
	return &SentenceLoss{
		Mean:    total / float64(b),
		DLogits: tensor.New(tensor.WithShape(b, c), tensor.WithBacking(dl)),
	}, nil
}
