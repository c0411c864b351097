// Package bufferpool pools the fixed-size transfer buffers used to stream
// put/get payloads over the wire protocol, so a busy server doesn't churn
// one 4096-byte allocation per chunk. One size class, matching the wire
// protocol's single chunk size, with hit/miss counters for Metrics.
package bufferpool

import (
	"sync"
	"sync/atomic"
)

// Size is the fixed length of every buffer this pool hands out, matching
// wire.TransferBufferSize.
const Size = 4096

// Pool provides thread-safe pooling of fixed-size byte buffers. Buffers are
// zeroized before being returned to the pool to avoid leaking one caller's
// blob bytes into another's chunk.
type Pool struct {
	pool *sync.Pool

	hits, misses int64
}

// global is the process-wide pool shared by server and proxy connection
// handlers.
var global = New()

// New constructs a standalone pool. Most callers should use Global.
func New() *Pool {
	// No New func: an empty sync.Pool must return nil so Get can count the
	// miss and allocate the buffer itself.
	return &Pool{pool: &sync.Pool{}}
}

// Global returns the process-wide buffer pool.
func Global() *Pool {
	return global
}

// Get returns a Size-length buffer, allocating one if the pool is empty.
func (p *Pool) Get() []byte {
	if buf := p.pool.Get(); buf != nil {
		atomic.AddInt64(&p.hits, 1)
		return buf.([]byte)
	}
	atomic.AddInt64(&p.misses, 1)
	return make([]byte, Size)
}

// Put zeroizes buf and returns it to the pool. Buffers of the wrong
// capacity are dropped for the garbage collector instead of pooled.
func (p *Pool) Put(buf []byte) {
	if cap(buf) != Size {
		return
	}
	buf = buf[:Size]
	for i := range buf {
		buf[i] = 0
	}
	p.pool.Put(buf)
}

// Metrics reports pool hit/miss counters.
type Metrics struct {
	Hits, Misses int64
}

// GetMetrics returns a snapshot of the pool's hit/miss counters.
func (p *Pool) GetMetrics() Metrics {
	return Metrics{
		Hits:   atomic.LoadInt64(&p.hits),
		Misses: atomic.LoadInt64(&p.misses),
	}
}

// HitRate returns the fraction of Get calls satisfied from the pool rather
// than freshly allocated.
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// Reset zeroes the hit/miss counters. Used by tests.
func (p *Pool) Reset() {
	atomic.StoreInt64(&p.hits, 0)
	atomic.StoreInt64(&p.misses, 0)
}
