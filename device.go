package electra

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Device describes the compute placement for a model: a human-readable name
// and the number of workers a model may fan batch rows out across.
type Device struct {
	Name    string
	Workers int
}

// CPU detects the host processor and sizes the worker pool to its logical
// core count.
func CPU() Device {
	name := cpuid.CPU.BrandName
	if name == "" {
		name = "cpu"
	}
	workers := cpuid.CPU.LogicalCores
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return Device{Name: name, Workers: workers}
}

func (d Device) String() string {
	return fmt.Sprintf("%s (%d workers)", d.Name, d.Workers)
}

// parallelFor splits [0, n) into contiguous chunks and runs fn on each chunk
// concurrently. With workers <= 1 it degenerates to a plain call.
func parallelFor(n, workers int, fn func(lo, hi int)) {
	if workers <= 1 || n <= 1 {
		fn(0, n)
		return
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}
