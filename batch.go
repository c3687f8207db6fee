package electra

import (
	"gorgonia.org/tensor"
)

// Batch is one pretraining example block. Integer tensors (token ids,
// segment ids, masked ids, masked positions, sentence labels) are backed by
// []int; InputMask and MaskedWeights are 0/1 float32 masks.
//
// Shapes: InputIDs, SegmentIDs, InputMask are [B, S]; MaskedIDs,
// MaskedPositions, MaskedWeights are [B, M]; IsNext is [B].
type Batch struct {
	InputIDs        *tensor.Dense
	SegmentIDs      *tensor.Dense
	InputMask       *tensor.Dense
	MaskedIDs       *tensor.Dense
	MaskedPositions *tensor.Dense
	MaskedWeights   *tensor.Dense
	IsNext          *tensor.Dense
}

// Size returns the number of rows B in the batch.
func (b *Batch) Size() int {
	return b.InputIDs.Shape()[0]
}

// SeqLen returns the padded sequence length S.
func (b *Batch) SeqLen() int {
	return b.InputIDs.Shape()[1]
}

// MaskCount returns the number of masked slots M per row (including padding
// slots, which carry zero weight).
func (b *Batch) MaskCount() int {
	return b.MaskedIDs.Shape()[1]
}

// WithMaskedIDs returns a copy of the batch whose supervision column is
// replaced by ids. The receiver is left untouched; the discriminator step
// relies on this when it substitutes replacement-detection labels for the
// original masked token ids.
func (b *Batch) WithMaskedIDs(ids *tensor.Dense) *Batch {
	nb := *b
	nb.MaskedIDs = ids
	return &nb
}
