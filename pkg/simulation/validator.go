package simulation

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ptychofft/internal/models"
	"ptychofft/pkg/ptycho"
)

// Metrics holds operator quality measurements on a synthetic problem.
type Metrics struct {
	// AdjointObject is |<Af,h> - <f,A*h>| / |<Af,h>| for the object adjoint
	// and a random detector field h. Zero up to rounding for an exact adjoint.
	AdjointObject float64

	// Linearity is ‖A(αf+g) - (αAf+Ag)‖ / ‖αAf+Ag‖.
	Linearity float64

	// IntensityMean, IntensityStdDev and IntensityMax summarize the far-field
	// intensities |Af|² over all frames.
	IntensityMean   float64
	IntensityStdDev float64
	IntensityMax    float64

	// IntensityRMSE is the RMSE between the intensities of the mixed forward
	// call and those of the combined single calls.
	IntensityRMSE float64

	// ObjectGradNorm and ProbeGradNorm are the L2 norms of the back-propagated
	// detector data.
	ObjectGradNorm float64
	ProbeGradNorm  float64

	ForwardTime time.Duration
	AdjointTime time.Duration
}

// Validator drives an operator over a synthetic problem.
type Validator struct {
	op      *ptycho.Operator
	problem *Problem
	rng     *rand.Rand

	detector   []complex64
	objectGrad []complex64
	probeGrad  []complex64

	metrics Metrics
}

// NewValidator checks that problem was built for the operator's sizes.
func NewValidator(op *ptycho.Operator, problem *Problem, seed int64) (*Validator, error) {
	if op.Dims() != problem.Dims {
		return nil, fmt.Errorf("simulation: problem sizes %+v do not match operator %+v", problem.Dims, op.Dims())
	}
	return &Validator{
		op:      op,
		problem: problem,
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

// Run performs the forward pass, both adjoints and the consistency checks.
func (v *Validator) Run() error {
	d := v.problem.Dims
	p := v.problem

	v.detector = make([]complex64, d.DetectorLen())
	start := time.Now()
	if err := v.op.Forward(v.detector, p.Object, p.Scan, p.Probe); err != nil {
		return fmt.Errorf("forward: %w", err)
	}
	v.metrics.ForwardTime = time.Since(start)

	v.objectGrad = make([]complex64, d.ObjectLen())
	start = time.Now()
	if err := v.op.Adjoint(v.objectGrad, v.detector, p.Scan, nil, p.Probe, models.TargetObject); err != nil {
		return fmt.Errorf("object adjoint: %w", err)
	}
	v.metrics.AdjointTime = time.Since(start)

	v.probeGrad = make([]complex64, d.ProbeLen())
	if err := v.op.Adjoint(v.probeGrad, v.detector, p.Scan, p.Object, p.Probe, models.TargetProbe); err != nil {
		return fmt.Errorf("probe adjoint: %w", err)
	}

	if err := v.checkAdjoint(); err != nil {
		return err
	}
	if err := v.checkLinearity(); err != nil {
		return err
	}

	intensity := Intensity(v.detector)
	v.metrics.IntensityMean, v.metrics.IntensityStdDev = stat.MeanStdDev(intensity, nil)
	v.metrics.IntensityMax = floats.Max(intensity)
	v.metrics.ObjectGradNorm = cmplxs.Norm(widen(v.objectGrad), 2)
	v.metrics.ProbeGradNorm = cmplxs.Norm(widen(v.probeGrad), 2)
	return nil
}

func (v *Validator) checkAdjoint() error {
	d := v.problem.Dims
	h := v.randomField(d.DetectorLen())
	ah := make([]complex64, d.ObjectLen())
	if err := v.op.Adjoint(ah, h, v.problem.Scan, nil, v.problem.Probe, models.TargetObject); err != nil {
		return fmt.Errorf("adjoint check: %w", err)
	}

	lhs := cmplxs.Dot(widen(v.detector), widen(h))
	rhs := cmplxs.Dot(widen(v.problem.Object), widen(ah))
	v.metrics.AdjointObject = cmplx.Abs(lhs-rhs) / cmplx.Abs(lhs)
	return nil
}

func (v *Validator) checkLinearity() error {
	d := v.problem.Dims
	p := v.problem
	const alpha = complex64(complex(0.6, -0.8))

	other := v.randomField(d.ObjectLen())
	mix := make([]complex64, d.ObjectLen())
	for i := range mix {
		mix[i] = alpha*p.Object[i] + other[i]
	}

	g := make([]complex64, d.DetectorLen())
	if err := v.op.Forward(g, other, p.Scan, p.Probe); err != nil {
		return fmt.Errorf("linearity check: %w", err)
	}
	gm := make([]complex64, d.DetectorLen())
	if err := v.op.Forward(gm, mix, p.Scan, p.Probe); err != nil {
		return fmt.Errorf("linearity check: %w", err)
	}

	want := make([]complex128, d.DetectorLen())
	for i := range want {
		want[i] = complex128(alpha)*complex128(v.detector[i]) + complex128(g[i])
	}
	got := widen(gm)
	v.metrics.Linearity = cmplxs.Distance(got, want, 2) / cmplxs.Norm(want, 2)
	v.metrics.IntensityRMSE = calculateRMSE(magnitudes2(want), magnitudes2(got))
	return nil
}

func (v *Validator) randomField(n int) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(float32(v.rng.NormFloat64()), float32(v.rng.NormFloat64()))
	}
	return out
}

// GetMetrics returns the metrics of the last Run.
func (v *Validator) GetMetrics() Metrics { return v.metrics }

// Detector returns the far-field frames of the last Run.
func (v *Validator) Detector() []complex64 { return v.detector }

// ObjectGradient returns the object adjoint of the detector frames.
func (v *Validator) ObjectGradient() []complex64 { return v.objectGrad }

// ProbeGradient returns the probe adjoint of the detector frames.
func (v *Validator) ProbeGradient() []complex64 { return v.probeGrad }

// Intensity returns |x|² per element.
func Intensity(x []complex64) []float64 {
	out := make([]float64, len(x))
	for i, c := range x {
		re, im := float64(real(c)), float64(imag(c))
		out[i] = re*re + im*im
	}
	return out
}

func magnitudes2(x []complex128) []float64 {
	out := make([]float64, len(x))
	for i, c := range x {
		out[i] = real(c)*real(c) + imag(c)*imag(c)
	}
	return out
}

// calculateRMSE computes the root mean square error
func calculateRMSE(original, reconstructed []float64) float64 {
	n := len(original)
	if n != len(reconstructed) || n == 0 {
		return 0
	}

	mse := 0.0
	for i := 0; i < n; i++ {
		diff := original[i] - reconstructed[i]
		mse += diff * diff
	}
	mse /= float64(n)

	return math.Sqrt(mse)
}

func widen(v []complex64) []complex128 {
	out := make([]complex128, len(v))
	for i, x := range v {
		out[i] = complex128(x)
	}
	return out
}
