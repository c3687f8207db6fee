package electra

import (
	"fmt"
	"math"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// SimpleMLM is a small reference model for the pretraining harness: token and
// segment embeddings feed a tanh hidden layer; masked positions are projected
// to lmOut logits and the first position to clsOut sentence logits. It is not
// a transformer; it exists so the harness, binary and tests have a concrete
// trainable collaborator.
type SimpleMLM struct {
	vocab, embed, hidden int
	lmOut, clsOut        int

	emb, seg       *Param
	w1, b1, w2, b2 *Param
	w3, b3         *Param

	workers int
	cache   *mlmCache
}

type mlmCache struct {
	ids, segs, mpos []int
	mask            []float32
	x, h            []float32
	b, s, m         int
}

func randDense(rng *rand.Rand, scale float32, shape ...int) *tensor.Dense {
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = (rng.Float32()*2 - 1) * scale
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func zeroDense(shape ...int) *tensor.Dense {
	return tensor.New(tensor.Of(tensor.Float32), tensor.WithShape(shape...))
}

// NewSimpleMLM builds a model with the given sizes. The generator uses
// lmOut == vocab; the discriminator uses lmOut == 2 (real vs replaced).
func NewSimpleMLM(vocab, embed, hidden, lmOut, clsOut int, seed int64) *SimpleMLM {
	rng := rand.New(rand.NewSource(seed))
	scale1 := float32(1.0 / math.Sqrt(float64(embed)))
	scale2 := float32(1.0 / math.Sqrt(float64(hidden)))
	return &SimpleMLM{
		vocab: vocab, embed: embed, hidden: hidden,
		lmOut: lmOut, clsOut: clsOut,
		emb:     NewParam("embed", randDense(rng, 0.05, vocab, embed)),
		seg:     NewParam("segment", randDense(rng, 0.05, 2, embed)),
		w1:      NewParam("w1", randDense(rng, scale1, embed, hidden)),
		b1:      NewParam("b1", zeroDense(hidden)),
		w2:      NewParam("w2", randDense(rng, scale2, hidden, lmOut)),
		b2:      NewParam("b2", zeroDense(lmOut)),
		w3:      NewParam("w3", randDense(rng, scale2, hidden, clsOut)),
		b3:      NewParam("b3", zeroDense(clsOut)),
		workers: 1,
	}
}

func (m *SimpleMLM) paramList() []*Param {
	return []*Param{m.emb, m.seg, m.w1, m.b1, m.w2, m.b2, m.w3, m.b3}
}

// Params implements Model.
func (m *SimpleMLM) Params() []gorgonia.ValueGrad {
	ps := m.paramList()
	out := make([]gorgonia.ValueGrad, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

// ZeroGrad implements Model.
func (m *SimpleMLM) ZeroGrad() {
	for _, p := range m.paramList() {
		p.Zero()
	}
}

// To implements Model: on CPU the device only carries the parallelism budget
// for the batch-row fan-out.
func (m *SimpleMLM) To(dev Device) {
	if dev.Workers > 0 {
		m.workers = dev.Workers
	}
}

// Forward implements Model. Batch rows are processed in parallel across the
// device workers; results and activations are cached for Backward.
func (m *SimpleMLM) Forward(b *Batch) (*Output, error) {
	B, S, M := b.Size(), b.SeqLen(), b.MaskCount()
	ids := b.InputIDs.Data().([]int)
	segs := b.SegmentIDs.Data().([]int)
	mask := b.InputMask.Data().([]float32)
	mpos := b.MaskedPositions.Data().([]int)
	D, H := m.embed, m.hidden

	for i, id := range ids {
		if id < 0 || id >= m.vocab {
			return nil, fmt.Errorf("token id %d at %d out of range [0, %d)", id, i, m.vocab)
		}
		if sg := segs[i]; sg < 0 || sg > 1 {
			return nil, fmt.Errorf("segment id %d at %d out of range [0, 2)", sg, i)
		}
	}
	for i, pos := range mpos {
		if pos < 0 || pos >= S {
			return nil, fmt.Errorf("masked position %d at %d out of range [0, %d)", pos, i, S)
		}
	}

	embW := m.emb.W.Data().([]float32)
	segW := m.seg.W.Data().([]float32)
	w1 := m.w1.W.Data().([]float32)
	b1 := m.b1.W.Data().([]float32)
	w2 := m.w2.W.Data().([]float32)
	b2 := m.b2.W.Data().([]float32)
	w3 := m.w3.W.Data().([]float32)
	b3 := m.b3.W.Data().([]float32)

	x := make([]float32, B*S*D)
	h := make([]float32, B*S*H)
	logitsLM := make([]float32, B*M*m.lmOut)
	logitsCLSF := make([]float32, B*m.clsOut)

	parallelFor(B, m.workers, func(lo, hi int) {
		for bi := lo; bi < hi; bi++ {
			for s := 0; s < S; s++ {
				base := bi*S + s
				xrow := x[base*D : (base+1)*D]
				mk := mask[base]
				if mk != 0 {
					erow := embW[ids[base]*D : (ids[base]+1)*D]
					srow := segW[segs[base]*D : (segs[base]+1)*D]
					for k := 0; k < D; k++ {
						xrow[k] = (erow[k] + srow[k]) * mk
					}
				}
				hrow := h[base*H : (base+1)*H]
				for k := 0; k < H; k++ {
					sum := b1[k]
					for d := 0; d < D; d++ {
						sum += xrow[d] * w1[d*H+k]
					}
					hrow[k] = float32(math.Tanh(float64(sum)))
				}
			}
			// LM head at the masked positions
			for mm := 0; mm < M; mm++ {
				pos := mpos[bi*M+mm]
				hrow := h[(bi*S+pos)*H : (bi*S+pos+1)*H]
				orow := logitsLM[(bi*M+mm)*m.lmOut : (bi*M+mm+1)*m.lmOut]
				copy(orow, b2)
				for k := 0; k < H; k++ {
					hk := hrow[k]
					wrow := w2[k*m.lmOut : (k+1)*m.lmOut]
					for j := range orow {
						orow[j] += hk * wrow[j]
					}
				}
			}
			// sentence head on the first position
			hrow := h[bi*S*H : (bi*S)*H+H]
			crow := logitsCLSF[bi*m.clsOut : (bi+1)*m.clsOut]
			copy(crow, b3)
			for k := 0; k < H; k++ {
				hk := hrow[k]
				wrow := w3[k*m.clsOut : (k+1)*m.clsOut]
				for j := range crow {
					crow[j] += hk * wrow[j]
				}
			}
		}
	})

	m.cache = &mlmCache{ids: ids, segs: segs, mpos: mpos, mask: mask, x: x, h: h, b: B, s: S, m: M}
	return &Output{
		LogitsLM:   tensor.New(tensor.WithShape(B, M, m.lmOut), tensor.WithBacking(logitsLM)),
		LogitsCLSF: tensor.New(tensor.WithShape(B, m.clsOut), tensor.WithBacking(logitsCLSF)),
	}, nil
}

// Backward implements Model: it accumulates parameter gradients from the
// dlogits of the two heads, using the activations cached by Forward.
func (m *SimpleMLM) Backward(dLM, dCLSF *tensor.Dense) error {
	c := m.cache
	if c == nil {
		return fmt.Errorf("backward before forward")
	}
	B, S, M := c.b, c.s, c.m
	D, H, L, C := m.embed, m.hidden, m.lmOut, m.clsOut
	wantLM := tensor.Shape{B, M, L}
	if !dLM.Shape().Eq(wantLM) {
		return fmt.Errorf("dlogits_lm shape %v, want %v", dLM.Shape(), wantLM)
	}
	wantC := tensor.Shape{B, C}
	if !dCLSF.Shape().Eq(wantC) {
		return fmt.Errorf("dlogits_clsf shape %v, want %v", dCLSF.Shape(), wantC)
	}
	dld := dLM.Data().([]float32)
	dcd := dCLSF.Data().([]float32)

	w1 := m.w1.W.Data().([]float32)
	w2 := m.w2.W.Data().([]float32)
	w3 := m.w3.W.Data().([]float32)
	gEmb := m.emb.G.Data().([]float32)
	gSeg := m.seg.G.Data().([]float32)
	gw1 := m.w1.G.Data().([]float32)
	gb1 := m.b1.G.Data().([]float32)
	gw2 := m.w2.G.Data().([]float32)
	gb2 := m.b2.G.Data().([]float32)
	gw3 := m.w3.G.Data().([]float32)
	gb3 := m.b3.G.Data().([]float32)

	dh := make([]float32, B*S*H)

	// LM head
	for bi := 0; bi < B; bi++ {
		for mm := 0; mm < M; mm++ {
			pos := c.mpos[bi*M+mm]
			hrow := c.h[(bi*S+pos)*H : (bi*S+pos+1)*H]
			drow := dld[(bi*M+mm)*L : (bi*M+mm+1)*L]
			dhrow := dh[(bi*S+pos)*H : (bi*S+pos+1)*H]
			for j := 0; j < L; j++ {
				gb2[j] += drow[j]
			}
			for k := 0; k < H; k++ {
				hk := hrow[k]
				wrow := w2[k*L : (k+1)*L]
				grow := gw2[k*L : (k+1)*L]
				var sum float32
				for j := 0; j < L; j++ {
					grow[j] += hk * drow[j]
					sum += wrow[j] * drow[j]
				}
				dhrow[k] += sum
			}
		}
	}

	// sentence head
	for bi := 0; bi < B; bi++ {
		hrow := c.h[bi*S*H : bi*S*H+H]
		drow := dcd[bi*C : (bi+1)*C]
		dhrow := dh[bi*S*H : bi*S*H+H]
		for j := 0; j < C; j++ {
			gb3[j] += drow[j]
		}
		for k := 0; k < H; k++ {
			hk := hrow[k]
			wrow := w3[k*C : (k+1)*C]
			grow := gw3[k*C : (k+1)*C]
			var sum float32
			for j := 0; j < C; j++ {
				grow[j] += hk * drow[j]
				sum += wrow[j] * drow[j]
			}
			dhrow[k] += sum
		}
	}

	// hidden layer and embeddings
	dx := make([]float32, D)
	dpre := make([]float32, H)
	for base := 0; base < B*S; base++ {
		dhrow := dh[base*H : (base+1)*H]
		live := false
		for _, v := range dhrow {
			if v != 0 {
				live = true
				break
			}
		}
		if !live {
			continue
		}
		hrow := c.h[base*H : (base+1)*H]
		xrow := c.x[base*D : (base+1)*D]
		for k := 0; k < H; k++ {
			dpre[k] = dhrow[k] * (1 - hrow[k]*hrow[k])
			gb1[k] += dpre[k]
		}
		for d := 0; d < D; d++ {
			xd := xrow[d]
			wrow := w1[d*H : (d+1)*H]
			grow := gw1[d*H : (d+1)*H]
			var sum float32
			for k := 0; k < H; k++ {
				grow[k] += xd * dpre[k]
				sum += wrow[k] * dpre[k]
			}
			dx[d] = sum
		}
		if mk := c.mask[base]; mk != 0 {
			erow := gEmb[c.ids[base]*D : (c.ids[base]+1)*D]
			srow := gSeg[c.segs[base]*D : (c.segs[base]+1)*D]
			for d := 0; d < D; d++ {
				erow[d] += dx[d] * mk
				srow[d] += dx[d] * mk
			}
		}
	}
	return nil
}

// StateDict implements Model: a deep copy of every named weight tensor.
func (m *SimpleMLM) StateDict() map[string]*tensor.Dense {
	out := make(map[string]*tensor.Dense, 8)
	for _, p := range m.paramList() {
		out[p.Name] = p.W.Clone().(*tensor.Dense)
	}
	return out
}

// LoadStateDict implements Model: every parameter must be present with a
// matching shape.
func (m *SimpleMLM) LoadStateDict(state map[string]*tensor.Dense) error {
	for _, p := range m.paramList() {
		src, ok := state[p.Name]
		if !ok {
			return fmt.Errorf("state dict missing %q", p.Name)
		}
		if err := p.copyInto(src); err != nil {
			return err
		}
	}
	return nil
}

// Arch describes the model dimensions for full snapshots.
func (m *SimpleMLM) Arch() map[string]int {
	return map[string]int{
		"vocab":   m.vocab,
		"embed":   m.embed,
		"hidden":  m.hidden,
		"lm_out":  m.lmOut,
		"cls_out": m.clsOut,
	}
}

// LoadSimpleMLM reconstructs a SimpleMLM from a full snapshot written by
// SaveCheckpoint (a backbone.pt file).
func LoadSimpleMLM(path string) (*SimpleMLM, error) {
	arch, state, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	for _, k := range []string{"vocab", "embed", "hidden", "lm_out", "cls_out"} {
		if _, ok := arch[k]; !ok {
			return nil, fmt.Errorf("snapshot %s: missing architecture field %q", path, k)
		}
	}
	m := NewSimpleMLM(arch["vocab"], arch["embed"], arch["hidden"], arch["lm_out"], arch["cls_out"], 0)
	if err := m.LoadStateDict(state); err != nil {
		return nil, err
	}
	return m, nil
}
