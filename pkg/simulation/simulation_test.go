package simulation

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptychofft/internal/models"
	"ptychofft/pkg/device"
	"ptychofft/pkg/ptycho"
)

var testParams = Params{
	Dims:           models.Dims{Ntheta: 2, Nz: 20, N: 24, Nscan: 9, Ndetx: 12, Ndety: 12, Nprb: 8},
	ProbeSigma:     2,
	ScanStep:       5,
	Subpixel:       true,
	Seed:           7,
	ObjectContrast: 0.5,
}

func TestNewProblemRejectsBadParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"probe larger than object", func(p *Params) { p.Dims.N = 4 }},
		{"zero step", func(p *Params) { p.ScanStep = 0 }},
		{"zero sigma", func(p *Params) { p.ProbeSigma = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams
			tt.mutate(&p)
			_, err := NewProblem(p)
			assert.Error(t, err)
		})
	}
}

func TestRasterScanStaysInsideObject(t *testing.T) {
	d := models.Dims{Ntheta: 3, Nz: 11, N: 13, Nscan: 30, Ndetx: 4, Ndety: 4, Nprb: 4}
	scan := RasterScan(rand.New(rand.NewSource(1)), d, 3, true)
	require.Equal(t, d.ScanLen(), scan.Len())

	for i := range scan.X {
		ix, fx := models.Split(scan.X[i])
		iy, fy := models.Split(scan.Y[i])
		assert.GreaterOrEqual(t, ix, 0)
		assert.GreaterOrEqual(t, iy, 0)
		assert.LessOrEqual(t, ix+d.Nprb, d.N, "position %d", i)
		assert.LessOrEqual(t, iy+d.Nprb, d.Nz, "position %d", i)
		assert.Less(t, fx, float32(0.9))
		assert.Less(t, fy, float32(0.9))
	}
}

func TestRasterScanIntegerWithoutSubpixel(t *testing.T) {
	d := models.Dims{Ntheta: 1, Nz: 16, N: 16, Nscan: 4, Ndetx: 4, Ndety: 4, Nprb: 4}
	scan := RasterScan(rand.New(rand.NewSource(1)), d, 5, false)

	assert.Equal(t, []float32{0, 5, 0, 5}, scan.X)
	assert.Equal(t, []float32{0, 0, 5, 5}, scan.Y)
}

func TestGaussianProbePeaksAtCenter(t *testing.T) {
	d := models.Dims{Ntheta: 2, Nprb: 5}
	probe := GaussianProbe(d, 1.5)
	require.Len(t, probe, d.ProbeLen())

	center := cmplx.Abs(complex128(probe[2*5+2]))
	assert.InDelta(t, 1.0, center, 1e-6)
	for i, v := range probe[:25] {
		assert.LessOrEqual(t, cmplx.Abs(complex128(v)), center+1e-6, "pixel %d", i)
	}
	assert.Equal(t, probe[:25], probe[25:], "every angle shares the probe")
}

func TestNewProblemIsDeterministic(t *testing.T) {
	a, err := NewProblem(testParams)
	require.NoError(t, err)
	b, err := NewProblem(testParams)
	require.NoError(t, err)

	assert.Equal(t, a.Object, b.Object)
	assert.Equal(t, a.Scan, b.Scan)
	assert.Len(t, a.Object, testParams.Dims.ObjectLen())
}

func TestValidatorRun(t *testing.T) {
	problem, err := NewProblem(testParams)
	require.NoError(t, err)

	op, err := ptycho.New(problem.Dims,
		ptycho.WithContext(device.NewContext(device.Config{Workers: 4})),
		ptycho.WithBoundsCheck(true))
	require.NoError(t, err)
	defer op.Close()

	v, err := NewValidator(op, problem, 3)
	require.NoError(t, err)
	require.NoError(t, v.Run())

	m := v.GetMetrics()
	assert.Less(t, m.AdjointObject, 1e-4)
	assert.Less(t, m.Linearity, 1e-4)
	assert.Greater(t, m.IntensityMean, 0.0)
	assert.Greater(t, m.IntensityStdDev, 0.0)
	assert.GreaterOrEqual(t, m.IntensityMax, m.IntensityMean)
	assert.False(t, math.IsNaN(m.IntensityRMSE))
	assert.Greater(t, m.ObjectGradNorm, 0.0)
	assert.Greater(t, m.ProbeGradNorm, 0.0)

	assert.Len(t, v.Detector(), problem.Dims.DetectorLen())
	assert.Len(t, v.ObjectGradient(), problem.Dims.ObjectLen())
	assert.Len(t, v.ProbeGradient(), problem.Dims.ProbeLen())
}

func TestNewValidatorRejectsMismatchedProblem(t *testing.T) {
	problem, err := NewProblem(testParams)
	require.NoError(t, err)

	d := testParams.Dims
	d.Nscan++
	op, err := ptycho.New(d)
	require.NoError(t, err)
	defer op.Close()

	_, err = NewValidator(op, problem, 1)
	assert.ErrorContains(t, err, "do not match")
}

func TestCalculateRMSE(t *testing.T) {
	assert.InDelta(t, 0.0, calculateRMSE([]float64{1, 2}, []float64{1, 2}), 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), calculateRMSE([]float64{0, 0}, []float64{1, 2}), 1e-12)
	assert.Equal(t, 0.0, calculateRMSE([]float64{1}, []float64{1, 2}))
}
