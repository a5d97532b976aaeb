package device

import (
	"sync"

	"ptychofft/pkg/grid"
)

// Kernel is invoked once per thread index inside a launch's extent.
type Kernel func(x, y, z int)

// Stream issues kernel launches in order. Launch blocks until every thread
// of the launch has run, so a launch sees all writes of earlier launches on
// the same stream.
type Stream struct {
	ctx *Context
}

// NewStream creates a stream on the context.
func (c *Context) NewStream() *Stream {
	return &Stream{ctx: c}
}

// Launch runs kernel over the grid of l. Blocks are distributed across the
// context's workers; threads whose global index falls outside l.Extent are
// not invoked.
func (s *Stream) Launch(l grid.Launch, kernel Kernel) {
	s.ctx.countLaunch()

	blocks := l.Blocks()
	if blocks == 0 {
		return
	}
	gx, gy := l.Grid.X, l.Grid.Y
	ext := l.Extent

	runBlock := func(b int) {
		bx := b % gx
		by := (b / gx) % gy
		bz := b / (gx * gy)

		x0, y0, z0 := bx*grid.Block.X, by*grid.Block.Y, bz*grid.Block.Z
		x1 := min(x0+grid.Block.X, ext.X)
		y1 := min(y0+grid.Block.Y, ext.Y)
		z1 := min(z0+grid.Block.Z, ext.Z)

		for z := z0; z < z1; z++ {
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					kernel(x, y, z)
				}
			}
		}
	}

	parallelFor(blocks, s.ctx.workers, runBlock)
}

// Parallel runs f(i) for i in [0, n) across the context's workers and
// returns when every call has finished.
func (s *Stream) Parallel(n int, f func(i int)) {
	parallelFor(n, s.ctx.workers, f)
}

// Memset zeroes buf.
func (s *Stream) Memset(buf *Buffer) {
	data := buf.Data()
	const chunk = 1 << 14
	chunks := (len(data) + chunk - 1) / chunk
	parallelFor(chunks, s.ctx.workers, func(i int) {
		start := i * chunk
		clear(data[start:min(start+chunk, len(data))])
	})
}

// parallelFor splits [0, n) into contiguous chunks, one goroutine per chunk.
func parallelFor(n, workers int, f func(i int)) {
	if workers <= 1 || n <= 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + workers - 1) / workers

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}
