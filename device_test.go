package electra

import (
	"strings"
	"sync/atomic"
	"testing"
)

func TestCPUDevice(t *testing.T) {
	dev := CPU()
	if dev.Name == "" {
		t.Fatal("empty device name")
	}
	if dev.Workers < 1 {
		t.Fatalf("workers = %d", dev.Workers)
	}
	if !strings.Contains(dev.String(), "workers") {
		t.Fatalf("String() = %q", dev.String())
	}
}

func TestParallelForCoversRange(t *testing.T) {
	for _, workers := range []int{1, 3, 8, 100} {
		var hits [17]int32
		parallelFor(len(hits), workers, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Fatalf("workers=%d: index %d visited %d times", workers, i, h)
			}
		}
	}
}

func TestParallelForEmptyRange(t *testing.T) {
	called := 0
	parallelFor(0, 4, func(lo, hi int) {
		called++
		if lo != 0 || hi != 0 {
			t.Fatalf("lo=%d hi=%d", lo, hi)
		}
	})
	if called != 1 {
		t.Fatalf("called %d times", called)
	}
}
