// Package fft implements batched, in-place, unnormalized 2D complex
// transforms over device buffers. A plan transforms batch slices of shape
// rows×cols, each embedded in a larger row-major frame.
package fft

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"ptychofft/pkg/device"
)

var (
	// ErrInvalidShape is returned for non-positive shapes, batches, or an
	// embedding smaller than the transform shape.
	ErrInvalidShape = errors.New("fft: invalid plan shape")

	// ErrLengthMismatch is returned when a buffer is too short for the plan.
	ErrLengthMismatch = errors.New("fft: buffer length mismatch")

	// ErrDestroyed is returned when a destroyed plan is executed.
	ErrDestroyed = errors.New("fft: plan destroyed")
)

// Direction selects the sign of the transform exponent.
type Direction int

const (
	// Forward computes X[k] = Σ x[j]·exp(-2πi·jk/n)
	Forward Direction = iota
	// Inverse computes x[j] = Σ X[k]·exp(+2πi·jk/n), without the 1/n factor
	Inverse
)

func (d Direction) String() string {
	if d == Inverse {
		return "inverse"
	}
	return "forward"
}

// worker holds the per-goroutine transform state; gonum's CmplxFFT keeps
// scratch space internally and must not be shared.
type worker struct {
	row, col         *fourier.CmplxFFT
	rowLine, colLine []complex128
}

// Plan is a batched 2D transform configuration.
type Plan struct {
	rows, cols int
	embedRows  int
	embedCols  int
	batch      int
	ctx        *device.Context
	workers    []*worker
	workspace  int64
	mu         sync.Mutex
	destroyed  bool
}

// NewPlan creates a plan transforming batch slices of shape (shape[0] rows,
// shape[1] columns). Slice b starts at b·embed[0]·embed[1] and its rows are
// embed[1] elements apart. The plan's scratch space is charged to ctx.
func NewPlan(ctx *device.Context, shape, embed [2]int, batch int) (*Plan, error) {
	if shape[0] < 1 || shape[1] < 1 || batch < 1 {
		return nil, fmt.Errorf("%w: shape %dx%d batch %d", ErrInvalidShape, shape[0], shape[1], batch)
	}
	if embed[0] < shape[0] || embed[1] < shape[1] {
		return nil, fmt.Errorf("%w: shape %dx%d does not fit in embedding %dx%d",
			ErrInvalidShape, shape[0], shape[1], embed[0], embed[1])
	}

	nworkers := min(ctx.Workers(), batch)

	// CmplxFFT keeps 6n float64 of state; the lines are one complex128 per element.
	perWorker := int64(48*(shape[0]+shape[1]) + 16*(shape[0]+shape[1]))
	workspace := perWorker * int64(nworkers)
	if err := ctx.Reserve(workspace); err != nil {
		return nil, fmt.Errorf("fft: plan workspace: %w", err)
	}

	p := &Plan{
		rows:      shape[0],
		cols:      shape[1],
		embedRows: embed[0],
		embedCols: embed[1],
		batch:     batch,
		ctx:       ctx,
		workspace: workspace,
		workers:   make([]*worker, nworkers),
	}
	for i := range p.workers {
		p.workers[i] = &worker{
			row:     fourier.NewCmplxFFT(shape[1]),
			col:     fourier.NewCmplxFFT(shape[0]),
			rowLine: make([]complex128, shape[1]),
			colLine: make([]complex128, shape[0]),
		}
	}
	return p, nil
}

// Shape returns the transform shape (rows, cols).
func (p *Plan) Shape() [2]int { return [2]int{p.rows, p.cols} }

// Batch returns the number of slices transformed per Execute.
func (p *Plan) Batch() int { return p.batch }

// Len returns the minimum buffer length Execute accepts.
func (p *Plan) Len() int { return p.batch * p.embedRows * p.embedCols }

// Execute transforms every slice of buf in place. Elements of each frame
// outside the rows×cols region are neither read nor written.
func (p *Plan) Execute(buf []complex64, dir Direction) error {
	p.mu.Lock()
	destroyed := p.destroyed
	p.mu.Unlock()
	if destroyed {
		return ErrDestroyed
	}
	if len(buf) < p.Len() {
		return fmt.Errorf("%w: need %d elements, got %d", ErrLengthMismatch, p.Len(), len(buf))
	}

	var wg sync.WaitGroup
	perWorker := (p.batch + len(p.workers) - 1) / len(p.workers)

	for w := range p.workers {
		start := w * perWorker
		if start >= p.batch {
			break
		}
		end := min(start+perWorker, p.batch)

		wg.Add(1)
		go func(wk *worker, start, end int) {
			defer wg.Done()
			for b := start; b < end; b++ {
				p.transformSlice(wk, buf[b*p.embedRows*p.embedCols:], dir)
			}
		}(p.workers[w], start, end)
	}
	wg.Wait()

	return nil
}

// transformSlice runs the row pass then the column pass on one slice.
func (p *Plan) transformSlice(wk *worker, slice []complex64, dir Direction) {
	stride := p.embedCols

	for r := 0; r < p.rows; r++ {
		row := slice[r*stride : r*stride+p.cols]
		for c, v := range row {
			wk.rowLine[c] = complex128(v)
		}
		transform(wk.row, wk.rowLine, dir)
		for c := range row {
			row[c] = complex64(wk.rowLine[c])
		}
	}

	for c := 0; c < p.cols; c++ {
		for r := 0; r < p.rows; r++ {
			wk.colLine[r] = complex128(slice[r*stride+c])
		}
		transform(wk.col, wk.colLine, dir)
		for r := 0; r < p.rows; r++ {
			slice[r*stride+c] = complex64(wk.colLine[r])
		}
	}
}

func transform(t *fourier.CmplxFFT, line []complex128, dir Direction) {
	if dir == Inverse {
		t.Sequence(line, line)
		return
	}
	t.Coefficients(line, line)
}

// Destroy releases the plan's workspace. It is safe to call more than once.
func (p *Plan) Destroy() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.workers = nil
	p.ctx.Release(p.workspace)
}
