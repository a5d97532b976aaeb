// Package ptycho implements the forward and adjoint ptychography operators.
//
// The forward operator maps an object and a probe to the far-field
// diffraction data at every scan position:
//
//	g = F(p · S(p · E f))
//
// where E extracts the probe-sized object window at the integer part of each
// scan position, S translates the window by the fractional part with a
// frequency-domain phase ramp, and F is the 2D Fourier transform of the full
// detector frame. The adjoint operator maps detector data back to an object
// gradient or a probe gradient.
//
// An Operator owns all of its buffers and transform plans. It is not safe
// for concurrent use: callers must serialize Forward and Adjoint calls.
package ptycho

import (
	"errors"
	"fmt"
	"log"
	"time"

	"ptychofft/internal/models"
	"ptychofft/pkg/device"
	"ptychofft/pkg/fft"
	"ptychofft/pkg/grid"
)

const (
	fftForward = fft.Forward
	fftInverse = fft.Inverse
)

// Option configures an Operator.
type Option func(*Operator)

// WithContext runs the operator on a caller-owned device context. The
// context is not closed with the operator.
func WithContext(ctx *device.Context) Option {
	return func(op *Operator) { op.ctx = ctx }
}

// WithLogger logs construction details and, with WithVerbose, per-call
// stage timings.
func WithLogger(l *log.Logger) Option {
	return func(op *Operator) { op.logger = l }
}

// WithVerbose enables per-call timing logs.
func WithVerbose(v bool) Option {
	return func(op *Operator) { op.verbose = v }
}

// WithBoundsCheck validates, before any device work, that every scan window
// lies inside the object. Off by default: out-of-bounds scan positions are
// a caller precondition and are not otherwise detected.
func WithBoundsCheck(on bool) Option {
	return func(op *Operator) { op.boundsCheck = on }
}

// Stats reports operator usage.
type Stats struct {
	Bytes        int64
	ForwardCalls int
	AdjointCalls int
}

// Operator is the ptychography forward/adjoint operator for fixed sizes.
type Operator struct {
	dims        models.Dims
	ctx         *device.Context
	stream      *device.Stream
	launch      grid.Plan
	logger      *log.Logger
	verbose     bool
	boundsCheck bool

	object    *device.Buffer
	probe     *device.Buffer
	probeGrad *device.Buffer
	detector  *device.Buffer
	scan      *device.Buffer
	rampX     *device.Buffer
	rampY     *device.Buffer

	detPlan *fft.Plan
	prbPlan *fft.Plan

	bytes  int64
	stats  Stats
	closed bool
}

// New validates dims, allocates every buffer and both transform plans, and
// plans the kernel launches. On failure nothing stays allocated.
func New(dims models.Dims, opts ...Option) (*Operator, error) {
	if err := validateDims(dims); err != nil {
		return nil, err
	}

	op := &Operator{dims: dims}
	for _, opt := range opts {
		opt(op)
	}
	if op.ctx == nil {
		op.ctx = device.NewContext(device.DefaultConfig())
	}
	op.stream = op.ctx.NewStream()
	op.launch = grid.PlanFor(dims)

	if err := op.allocate(); err != nil {
		op.release()
		return nil, err
	}

	op.logf("ptycho: operator ntheta=%d nz=%d n=%d nscan=%d det=%dx%d nprb=%d, %d bytes",
		dims.Ntheta, dims.Nz, dims.N, dims.Nscan, dims.Ndetx, dims.Ndety, dims.Nprb, op.bytes)
	op.logf("ptycho: launches probe[%s] detector[%s] scan[%s]", op.launch.Probe, op.launch.Detector, op.launch.Scan)
	info := op.ctx.Info()
	op.logf("ptycho: %s, %d workers, features %v", info.Arch, info.Workers, info.Features)

	return op, nil
}

func validateDims(d models.Dims) error {
	fields := []struct {
		name string
		v    int
	}{
		{"ntheta", d.Ntheta}, {"nz", d.Nz}, {"n", d.N}, {"nscan", d.Nscan},
		{"ndetx", d.Ndetx}, {"ndety", d.Ndety}, {"nprb", d.Nprb},
	}
	for _, f := range fields {
		if f.v < 1 {
			return &InvalidShapeError{Dims: d, Reason: fmt.Sprintf("%s must be positive, got %d", f.name, f.v)}
		}
	}
	if d.Ndetx < d.Nprb || d.Ndety < d.Nprb {
		return &InvalidShapeError{Dims: d, Reason: fmt.Sprintf("detector %dx%d smaller than probe %d", d.Ndetx, d.Ndety, d.Nprb)}
	}
	if d.Nz < d.Nprb || d.N < d.Nprb {
		return &InvalidShapeError{Dims: d, Reason: fmt.Sprintf("object %dx%d smaller than probe %d", d.Nz, d.N, d.Nprb)}
	}
	return nil
}

func (op *Operator) allocate() error {
	d := op.dims

	buffers := []struct {
		name string
		dst  **device.Buffer
		n    int
	}{
		{"object", &op.object, d.ObjectLen()},
		{"probe", &op.probe, d.ProbeLen()},
		{"probe gradient", &op.probeGrad, d.ProbeLen()},
		{"detector", &op.detector, d.DetectorLen()},
		{"scan", &op.scan, d.ScanLen()},
		{"ramp x", &op.rampX, d.ScanLen()},
		{"ramp y", &op.rampY, d.ScanLen()},
	}
	for _, b := range buffers {
		buf, err := op.ctx.Alloc(b.n)
		if err != nil {
			return exhausted(b.name, int64(b.n)*8, err)
		}
		*b.dst = buf
		op.bytes += buf.Bytes()
	}

	before := op.ctx.Stats().InUse
	batch := d.ScanLen()
	frame := [2]int{d.Ndetx, d.Ndety}

	var err error
	op.detPlan, err = fft.NewPlan(op.ctx, frame, frame, batch)
	if err != nil {
		return exhausted("detector plan", 0, err)
	}
	op.prbPlan, err = fft.NewPlan(op.ctx, [2]int{d.Nprb, d.Nprb}, frame, batch)
	if err != nil {
		return exhausted("probe plan", 0, err)
	}
	op.bytes += op.ctx.Stats().InUse - before

	return nil
}

func exhausted(resource string, requested int64, err error) error {
	var allocErr *device.AllocError
	if errors.As(err, &allocErr) {
		requested = allocErr.Requested
	}
	return &ResourceExhaustedError{Resource: resource, Requested: requested, Err: err}
}

// release frees everything allocate acquired. Each release is idempotent.
func (op *Operator) release() {
	op.detPlan.Destroy()
	op.prbPlan.Destroy()
	for _, b := range []*device.Buffer{op.object, op.probe, op.probeGrad, op.detector, op.scan, op.rampX, op.rampY} {
		b.Free()
	}
}

// Close releases all buffers and plans. Calling Close more than once is a
// no-op; the operator cannot be used afterwards.
func (op *Operator) Close() error {
	if op.closed {
		return nil
	}
	op.closed = true
	op.release()
	return nil
}

// Dims returns the sizes the operator was constructed for.
func (op *Operator) Dims() models.Dims { return op.dims }

// Stats returns allocation size and call counters.
func (op *Operator) Stats() Stats {
	s := op.stats
	s.Bytes = op.bytes
	return s
}

// Forward computes the detector data for object, probe and scan positions
// and writes it to detOut (ntheta × nscan × ndetx × ndety). Arguments are
// validated before any device work; on error detOut is left untouched.
func (op *Operator) Forward(detOut, object []complex64, scan models.Scan, probe []complex64) error {
	if op.closed {
		return ErrClosed
	}
	d := op.dims
	if err := firstMismatch(
		check("detector output", d.DetectorLen(), len(detOut)),
		check("object", d.ObjectLen(), len(object)),
		check("scan positions", d.ScanLen(), scan.Len()),
		check("probe", d.ProbeLen(), len(probe)),
	); err != nil {
		return err
	}
	if err := op.checkBounds(scan); err != nil {
		return err
	}

	t := op.timer("forward")
	op.uploadScan(scan)
	if err := op.object.Upload(object); err != nil {
		return err
	}
	if err := op.probe.Upload(probe); err != nil {
		return err
	}

	op.stream.Memset(op.detector)
	op.extract()
	t.mark("extract")

	if err := op.shift(ShiftForward); err != nil {
		return err
	}
	t.mark("shift")

	op.multiplyProbe()
	if err := op.detPlan.Execute(op.detector.Data(), fftForward); err != nil {
		return err
	}
	t.mark("propagate")

	op.stats.ForwardCalls++
	t.done()
	return op.detector.Download(detOut)
}

// Adjoint maps detIn back to a gradient and writes it to gradOut.
//
// For TargetObject the gradient is object-shaped and object may be nil.
// For TargetProbe the gradient is probe-shaped and object is the fixed
// object the probe windows are taken from; the result is the adjoint of the
// forward operator with respect to the inner probe factor, the outer probe
// held fixed.
func (op *Operator) Adjoint(gradOut, detIn []complex64, scan models.Scan, object, probe []complex64, target models.Target) error {
	if op.closed {
		return ErrClosed
	}
	d := op.dims

	var gradLen int
	switch target {
	case models.TargetObject:
		gradLen = d.ObjectLen()
	case models.TargetProbe:
		gradLen = d.ProbeLen()
	default:
		return fmt.Errorf("%w: %d", ErrInvalidTarget, int(target))
	}

	checks := []error{
		check(target.String()+" gradient output", gradLen, len(gradOut)),
		check("detector input", d.DetectorLen(), len(detIn)),
		check("scan positions", d.ScanLen(), scan.Len()),
		check("probe", d.ProbeLen(), len(probe)),
	}
	if target == models.TargetProbe {
		checks = append(checks, check("object", d.ObjectLen(), len(object)))
	}
	if err := firstMismatch(checks...); err != nil {
		return err
	}
	if err := op.checkBounds(scan); err != nil {
		return err
	}

	t := op.timer("adjoint " + target.String())
	op.uploadScan(scan)
	if err := op.detector.Upload(detIn); err != nil {
		return err
	}
	if err := op.probe.Upload(probe); err != nil {
		return err
	}

	if err := op.detPlan.Execute(op.detector.Data(), fftInverse); err != nil {
		return err
	}
	op.restrictConjProbe()
	t.mark("backpropagate")

	if err := op.shift(ShiftAdjoint); err != nil {
		return err
	}
	t.mark("shift")

	var out *device.Buffer
	if target == models.TargetObject {
		op.stream.Memset(op.object)
		op.accumulateObject()
		out = op.object
	} else {
		if err := op.object.Upload(object); err != nil {
			return err
		}
		op.stream.Memset(op.probeGrad)
		op.accumulateProbe()
		out = op.probeGrad
	}
	t.mark("accumulate")

	op.stats.AdjointCalls++
	t.done()
	return out.Download(gradOut)
}

// uploadScan packs the scan coordinates as complex(x, y).
func (op *Operator) uploadScan(scan models.Scan) {
	dst := op.scan.Data()
	op.stream.Parallel(len(dst), func(i int) {
		dst[i] = complex(scan.X[i], scan.Y[i])
	})
}

// checkBounds verifies every probe window lies inside the object when
// bounds checking is enabled.
func (op *Operator) checkBounds(scan models.Scan) error {
	if !op.boundsCheck {
		return nil
	}
	d := op.dims
	for a := 0; a < d.Ntheta; a++ {
		for s := 0; s < d.Nscan; s++ {
			x, y := scan.X[a*d.Nscan+s], scan.Y[a*d.Nscan+s]
			ix, _ := models.Split(x)
			iy, _ := models.Split(y)
			if ix < 0 || iy < 0 || ix+d.Nprb > d.N || iy+d.Nprb > d.Nz {
				return &PreconditionError{
					Angle: a, Scan: s, X: x, Y: y,
					Reason: fmt.Sprintf("probe window [%d,%d)x[%d,%d) outside object %dx%d", iy, iy+d.Nprb, ix, ix+d.Nprb, d.Nz, d.N),
				}
			}
		}
	}
	return nil
}

func check(arg string, expected, actual int) error {
	if expected != actual {
		return &ShapeMismatchError{Arg: arg, Expected: expected, Actual: actual}
	}
	return nil
}

func firstMismatch(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (op *Operator) logf(format string, args ...any) {
	if op.logger != nil {
		op.logger.Printf(format, args...)
	}
}

// stageTimer logs the duration of each stage of one call when verbose.
type stageTimer struct {
	op    *Operator
	call  string
	start time.Time
	last  time.Time
}

func (op *Operator) timer(call string) *stageTimer {
	now := time.Now()
	return &stageTimer{op: op, call: call, start: now, last: now}
}

func (t *stageTimer) mark(stage string) {
	if !t.op.verbose {
		return
	}
	now := time.Now()
	t.op.logf("ptycho: %s: %s took %v", t.call, stage, now.Sub(t.last))
	t.last = now
}

func (t *stageTimer) done() {
	if t.op.verbose {
		t.op.logf("ptycho: %s took %v", t.call, time.Since(t.start))
	}
}
