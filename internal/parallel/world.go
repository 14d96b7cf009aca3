// Package parallel is the in-process rank model used by the benchmarks.
//
// A World of Size ranks runs one goroutine per rank. Mesh cells are split
// into contiguous blocks, one per rank, and only the root rank writes output.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

const Root = 0

type World struct {
	Size int
}

// NewWorld clamps size to at least one rank. Zero means one rank per CPU.
func NewWorld(size int) World {
	if size == 0 {
		size = runtime.GOMAXPROCS(0)
	}
	if size < 1 {
		size = 1
	}
	return World{Size: size}
}

// IsRoot reports whether rank coordinates output.
func IsRoot(rank int) bool { return rank == Root }

// Run executes fn on every rank and returns the first error. The context
// passed to fn is canceled as soon as any rank fails.
func (w World) Run(ctx context.Context, fn func(ctx context.Context, rank int) error) error {
	if w.Size <= 1 {
		return fn(ctx, Root)
	}
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < w.Size; r++ {
		rank := r
		g.Go(func() error {
			if err := fn(gctx, rank); err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Block is a half-open range [Start, End) of items owned by one rank.
type Block struct {
	Start, End int
}

func (b Block) Len() int { return b.End - b.Start }

// Partition splits n items into size contiguous blocks whose lengths differ
// by at most one.
func Partition(n, size int) []Block {
	if size < 1 {
		size = 1
	}
	out := make([]Block, size)
	base, extra := n/size, n%size
	start := 0
	for r := 0; r < size; r++ {
		l := base
		if r < extra {
			l++
		}
		out[r] = Block{Start: start, End: start + l}
		start += l
	}
	return out
}

// For runs fn over [0, n) split into at most workers chunks of at least
// minChunk items.
func For(n, minChunk, workers int, fn func(start, end int)) {
	if workers <= 1 || n <= minChunk {
		fn(0, n)
		return
	}
	if n/minChunk < workers {
		workers = n / minChunk
	}
	if workers < 1 {
		workers = 1
	}
	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ReduceSum adds every rank-local buffer into dst.
func ReduceSum(dst []float64, locals [][]float64, workers int) {
	For(len(dst), 4096, workers, func(start, end int) {
		for _, l := range locals {
			for i := start; i < end; i++ {
				dst[i] += l[i]
			}
		}
	})
}
