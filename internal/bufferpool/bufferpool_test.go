package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsCorrectSize(t *testing.T) {
	p := New()
	buf := p.Get()
	assert.Len(t, buf, Size)
}

func TestPutGetReusesBuffer(t *testing.T) {
	p := New()
	buf := p.Get()
	buf[0] = 0xAB
	p.Put(buf)

	got := p.Get()
	assert.Equal(t, byte(0), got[0], "buffer must be zeroized before reuse")
}

func TestPutRejectsWrongCapacity(t *testing.T) {
	p := New()
	p.Reset()
	before := p.GetMetrics()

	p.Put(make([]byte, Size-1))
	p.Get()

	after := p.GetMetrics()
	assert.Equal(t, before.Misses+1, after.Misses, "a short buffer must not satisfy the next Get")
}

func TestMetricsHitRate(t *testing.T) {
	p := New()
	p.Reset()

	buf := p.Get() // miss, pool starts empty
	p.Put(buf)
	p.Get() // hit

	m := p.GetMetrics()
	assert.EqualValues(t, 1, m.Hits)
	assert.EqualValues(t, 1, m.Misses)
	assert.InDelta(t, 0.5, m.HitRate(), 0.0001)
}

func TestResetClearsCounters(t *testing.T) {
	p := New()
	p.Get()
	p.Reset()

	m := p.GetMetrics()
	assert.Zero(t, m.Hits)
	assert.Zero(t, m.Misses)
}

func TestGlobalPoolIsSharedSingleton(t *testing.T) {
	assert.Same(t, Global(), Global())
}
