package executor

import (
	"fmt"
	"sync"
	"testing"
)

func TestWarmPoolFIFO(t *testing.T) {
	pool := NewWarmPool(3)
	for _, id := range []string{"a", "b", "c"} {
		if !pool.Return(id) {
			t.Fatalf("expected %s to be accepted", id)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := pool.Get()
		if !ok {
			t.Fatalf("expected a handle, pool was empty")
		}
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}

	if _, ok := pool.Get(); ok {
		t.Fatalf("expected empty pool")
	}
}

func TestWarmPoolRejectsWhenFull(t *testing.T) {
	pool := NewWarmPool(2)
	pool.Return("a")
	pool.Return("b")

	if !pool.IsFull() {
		t.Fatalf("expected pool to be full")
	}
	if pool.Return("c") {
		t.Fatalf("expected third handle to be refused")
	}
	if pool.Available() != 2 {
		t.Fatalf("expected 2 available, got %d", pool.Available())
	}
	if pool.Contains("c") {
		t.Fatalf("refused handle must not be tracked")
	}
}

func TestWarmPoolZeroSize(t *testing.T) {
	pool := NewWarmPool(0)
	if !pool.IsFull() {
		t.Fatalf("expected zero-size pool to report full")
	}
	if pool.Return("a") {
		t.Fatalf("expected zero-size pool to refuse every handle")
	}

	if NewWarmPool(-1).MaxSize() != 0 {
		t.Fatalf("expected negative size to clamp to 0")
	}
}

func TestWarmPoolDrain(t *testing.T) {
	pool := NewWarmPool(3)
	pool.Return("a")
	pool.Return("b")

	drained := pool.Drain()
	if len(drained) != 2 || drained[0] != "a" || drained[1] != "b" {
		t.Fatalf("expected [a b], got %v", drained)
	}
	if pool.Available() != 0 {
		t.Fatalf("expected empty pool after drain, got %d", pool.Available())
	}

	// the drained slice must not alias the pool's new storage
	pool.Return("c")
	if drained[0] != "a" {
		t.Fatalf("drained handles changed after reuse: %v", drained)
	}
}

func TestWarmPoolContains(t *testing.T) {
	pool := NewWarmPool(2)
	pool.Return("a")
	if !pool.Contains("a") {
		t.Fatalf("expected pool to contain a")
	}
	pool.Get()
	if pool.Contains("a") {
		t.Fatalf("expected a to be gone after Get")
	}
}

func TestWarmPoolConcurrentAccess(t *testing.T) {
	const size = 50
	pool := NewWarmPool(size)

	var wg sync.WaitGroup
	for i := 0; i < size*2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pool.Return(fmt.Sprintf("h-%d", i))
		}(i)
	}
	wg.Wait()

	if pool.Available() != size {
		t.Fatalf("expected %d handles, got %d", size, pool.Available())
	}

	seen := make(map[string]bool)
	var mu sync.Mutex
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ok := pool.Get()
			if !ok {
				return
			}
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != size {
		t.Fatalf("expected %d distinct handles, got %d", size, len(seen))
	}
}
