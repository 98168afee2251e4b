package executor

import "sync"

// WarmPool is a bounded FIFO of idle container handles. It owns no container
// state: a handle it refuses in Return is still the caller's to destroy.
type WarmPool struct {
	mu      sync.Mutex
	idle    []string
	maxSize int
}

// NewWarmPool creates an empty pool holding at most maxSize handles.
func NewWarmPool(maxSize int) *WarmPool {
	if maxSize < 0 {
		maxSize = 0
	}
	return &WarmPool{
		idle:    make([]string, 0, maxSize),
		maxSize: maxSize,
	}
}

// Get pops the oldest idle handle. It never blocks.
func (p *WarmPool) Get() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) == 0 {
		return "", false
	}
	id := p.idle[0]
	p.idle[0] = ""
	p.idle = p.idle[1:]
	return id, true
}

// Return queues a handle behind the others. It reports false when the pool
// is already full; the caller must then destroy the container itself.
func (p *WarmPool) Return(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) >= p.maxSize {
		return false
	}
	p.idle = append(p.idle, id)
	return true
}

// Available returns the number of idle handles.
func (p *WarmPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

func (p *WarmPool) MaxSize() int {
	return p.maxSize
}

func (p *WarmPool) IsFull() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle) >= p.maxSize
}

// Contains reports whether id is currently idle in the pool.
func (p *WarmPool) Contains(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.idle {
		if h == id {
			return true
		}
	}
	return false
}

// Drain empties the pool and hands every idle handle back for destruction.
func (p *WarmPool) Drain() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	drained := p.idle
	p.idle = make([]string, 0, p.maxSize)
	return drained
}
