package electra

// DataIterator yields batches in a fixed order. The trainer calls Reset at
// the start of every epoch and drains the iterator with Next.
type DataIterator interface {
	Reset()
	Next() (*Batch, bool)
}

// Batches is an in-memory DataIterator over a prepared slice of batches.
type Batches struct {
	batches []*Batch
	next    int
}

func NewBatches(batches []*Batch) *Batches {
	return &Batches{batches: batches}
}

func (it *Batches) Reset() { it.next = 0 }

func (it *Batches) Next() (*Batch, bool) {
	if it.next >= len(it.batches) {
		return nil, false
	}
	b := it.batches[it.next]
	it.next++
	return b, true
}

// Len returns the number of batches per epoch.
func (it *Batches) Len() int { return len(it.batches) }
