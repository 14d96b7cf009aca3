package fem

import "sync"

// scratchPool recycles the per-element work buffers of a kernel. Compute is
// called concurrently from every rank, so each call takes its own buffer.
type scratchPool struct {
	pool sync.Pool
	n    int
}

func newScratchPool(n int) *scratchPool {
	p := &scratchPool{n: n}
	p.pool.New = func() any {
		buf := make([]float64, n)
		return &buf
	}
	return p
}

// Get returns a zeroed buffer of the pool's length.
func (p *scratchPool) Get() *[]float64 {
	return p.pool.Get().(*[]float64)
}

func (p *scratchPool) Put(buf *[]float64) {
	if len(*buf) != p.n {
		return
	}
	clear(*buf)
	p.pool.Put(buf)
}
