// Package simulation builds synthetic ptychography problems and measures how
// well an operator behaves on them.
package simulation

import (
	"fmt"
	"math"
	"math/rand"

	"ptychofft/internal/models"
)

// Params controls the synthetic problem.
type Params struct {
	// Dims are the operator sizes the problem is built for.
	Dims models.Dims

	// ProbeSigma is the Gaussian probe width in pixels.
	ProbeSigma float64

	// ScanStep is the raster step between neighbouring scan points.
	ScanStep int

	// Subpixel adds a fractional offset in [0, 0.9) to every position.
	Subpixel bool

	// Seed seeds every random draw.
	Seed int64

	// ObjectContrast scales the object phase.
	ObjectContrast float64
}

// Problem is a synthetic object, probe and scan trajectory.
type Problem struct {
	Dims   models.Dims
	Object []complex64
	Probe  []complex64
	Scan   models.Scan
}

// NewProblem builds a problem from params. Every scan window lies inside the
// object.
func NewProblem(p Params) (*Problem, error) {
	d := p.Dims
	if d.Nprb < 1 || d.N < d.Nprb || d.Nz < d.Nprb || d.Ntheta < 1 || d.Nscan < 1 {
		return nil, fmt.Errorf("simulation: probe %d does not fit object %dx%d", d.Nprb, d.Nz, d.N)
	}
	if p.ScanStep < 1 {
		return nil, fmt.Errorf("simulation: scan step must be positive, got %d", p.ScanStep)
	}
	if p.ProbeSigma <= 0 {
		return nil, fmt.Errorf("simulation: probe sigma must be positive, got %g", p.ProbeSigma)
	}

	rng := rand.New(rand.NewSource(p.Seed))
	return &Problem{
		Dims:   d,
		Object: object(rng, d, p.ObjectContrast),
		Probe:  GaussianProbe(d, p.ProbeSigma),
		Scan:   RasterScan(rng, d, p.ScanStep, p.Subpixel),
	}, nil
}

// object is a weak phase object per angle: a handful of Gaussian blobs
// drive both phase and a slight absorption.
func object(rng *rand.Rand, d models.Dims, contrast float64) []complex64 {
	const blobs = 6
	out := make([]complex64, d.ObjectLen())
	for a := 0; a < d.Ntheta; a++ {
		type blob struct{ r, c, w float64 }
		bs := make([]blob, blobs)
		for i := range bs {
			bs[i] = blob{
				r: rng.Float64() * float64(d.Nz),
				c: rng.Float64() * float64(d.N),
				w: 1 + rng.Float64()*float64(min(d.Nz, d.N))/6,
			}
		}

		base := a * d.Nz * d.N
		for r := 0; r < d.Nz; r++ {
			for c := 0; c < d.N; c++ {
				var phi float64
				for _, b := range bs {
					dr, dc := float64(r)-b.r, float64(c)-b.c
					phi += math.Exp(-(dr*dr + dc*dc) / (2 * b.w * b.w))
				}
				amp := math.Exp(-0.1 * phi)
				s, co := math.Sincos(contrast * phi)
				out[base+r*d.N+c] = complex(float32(amp*co), float32(amp*s))
			}
		}
	}
	return out
}

// GaussianProbe returns a centered Gaussian illumination with a weak
// quadratic phase, identical for every angle.
func GaussianProbe(d models.Dims, sigma float64) []complex64 {
	n := d.Nprb
	mid := float64(n-1) / 2
	window := make([]complex64, n*n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			dr, dc := float64(r)-mid, float64(c)-mid
			rho2 := dr*dr + dc*dc
			amp := math.Exp(-rho2 / (2 * sigma * sigma))
			s, co := math.Sincos(math.Pi * rho2 / float64(n*n))
			window[r*n+c] = complex(float32(amp*co), float32(amp*s))
		}
	}

	out := make([]complex64, d.ProbeLen())
	for a := 0; a < d.Ntheta; a++ {
		copy(out[a*n*n:], window)
	}
	return out
}

// RasterScan lays nscan positions on a square raster with the given step,
// wrapping inside the range of valid window corners. Each angle gets its own
// fractional jitter when subpixel is set.
func RasterScan(rng *rand.Rand, d models.Dims, step int, subpixel bool) models.Scan {
	scan := models.NewScan(d.Ntheta, d.Nscan)
	cols := int(math.Ceil(math.Sqrt(float64(d.Nscan))))
	spanX := d.N - d.Nprb + 1
	spanY := d.Nz - d.Nprb + 1

	for a := 0; a < d.Ntheta; a++ {
		for s := 0; s < d.Nscan; s++ {
			x := float32((s % cols * step) % spanX)
			y := float32((s / cols * step) % spanY)
			if subpixel {
				x += float32(rng.Float64() * 0.9)
				y += float32(rng.Float64() * 0.9)
			}
			scan.X[a*d.Nscan+s] = x
			scan.Y[a*d.Nscan+s] = y
		}
	}
	return scan
}
