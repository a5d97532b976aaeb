package ptycho

import (
	"math"
	"math/cmplx"
	"math/rand"

	"gonum.org/v1/gonum/cmplxs"

	"ptychofft/internal/models"
)

// This file holds a direct, unoptimized implementation of the operator chain
// in complex128 with naive DFTs, used to cross-check the Operator.

func dft2(in []complex128, rows, cols int, sign float64) []complex128 {
	out := make([]complex128, rows*cols)
	for kr := 0; kr < rows; kr++ {
		for kc := 0; kc < cols; kc++ {
			var sum complex128
			for r := 0; r < rows; r++ {
				for c := 0; c < cols; c++ {
					phase := sign * 2 * math.Pi * (float64(kr*r)/float64(rows) + float64(kc*c)/float64(cols))
					sum += in[r*cols+c] * cmplx.Exp(complex(0, phase))
				}
			}
			out[kr*cols+kc] = sum
		}
	}
	return out
}

// subpixel translates an n×n window by (fx, fy) pixels through the
// frequency domain, normalized so a zero shift is the identity.
func subpixel(w []complex128, n int, fx, fy float64) []complex128 {
	freq := dft2(w, n, n, -1)
	for kr := 0; kr < n; kr++ {
		for kc := 0; kc < n; kc++ {
			phase := 2 * math.Pi * (fy*float64(signedFreq(kr, n)) + fx*float64(signedFreq(kc, n))) / float64(n)
			freq[kr*n+kc] *= cmplx.Exp(complex(0, phase)) / complex(float64(n*n), 0)
		}
	}
	return dft2(freq, n, n, 1)
}

// refForward computes F(outer · S(inner · E f)).
func refForward(d models.Dims, f, inner, outer []complex64, scan models.Scan) []complex128 {
	np := d.Nprb
	out := make([]complex128, d.DetectorLen())

	for a := 0; a < d.Ntheta; a++ {
		for s := 0; s < d.Nscan; s++ {
			ind := a*d.Nscan + s
			ix, fx := models.Split(scan.X[ind])
			iy, fy := models.Split(scan.Y[ind])

			w := make([]complex128, np*np)
			for r := 0; r < np; r++ {
				for c := 0; c < np; c++ {
					w[r*np+c] = complex128(f[(a*d.Nz+iy+r)*d.N+ix+c]) * complex128(inner[(a*np+r)*np+c])
				}
			}
			w = subpixel(w, np, float64(fx), float64(fy))

			frame := make([]complex128, d.FrameLen())
			for r := 0; r < np; r++ {
				for c := 0; c < np; c++ {
					frame[r*d.Ndety+c] = w[r*np+c] * complex128(outer[(a*np+r)*np+c])
				}
			}
			copy(out[ind*d.FrameLen():], dft2(frame, d.Ndetx, d.Ndety, -1))
		}
	}
	return out
}

// refAdjointObject computes Eᵀ(conj(p) · S⁻(conj(p) · restrict(F⁻¹ h))).
func refAdjointObject(d models.Dims, h, p []complex64, scan models.Scan) []complex128 {
	np := d.Nprb
	grad := make([]complex128, d.ObjectLen())

	for a := 0; a < d.Ntheta; a++ {
		for s := 0; s < d.Nscan; s++ {
			ind := a*d.Nscan + s
			ix, fx := models.Split(scan.X[ind])
			iy, fy := models.Split(scan.Y[ind])

			frame := make([]complex128, d.FrameLen())
			for i := range frame {
				frame[i] = complex128(h[ind*d.FrameLen()+i])
			}
			back := dft2(frame, d.Ndetx, d.Ndety, 1)

			w := make([]complex128, np*np)
			for r := 0; r < np; r++ {
				for c := 0; c < np; c++ {
					w[r*np+c] = back[r*d.Ndety+c] * cmplx.Conj(complex128(p[(a*np+r)*np+c]))
				}
			}
			w = subpixel(w, np, -float64(fx), -float64(fy))

			for r := 0; r < np; r++ {
				for c := 0; c < np; c++ {
					grad[(a*d.Nz+iy+r)*d.N+ix+c] += w[r*np+c] * cmplx.Conj(complex128(p[(a*np+r)*np+c]))
				}
			}
		}
	}
	return grad
}

func randomComplex(rng *rand.Rand, n int) []complex64 {
	out := make([]complex64, n)
	for i := range out {
		out[i] = complex(float32(rng.NormFloat64()), float32(rng.NormFloat64()))
	}
	return out
}

// randomScan places every window inside the object. With subpixel set the
// coordinates carry a fractional part in [0, 0.95).
func randomScan(rng *rand.Rand, d models.Dims, subpixel bool) models.Scan {
	scan := models.NewScan(d.Ntheta, d.Nscan)
	for i := range scan.X {
		scan.X[i] = float32(rng.Intn(d.N - d.Nprb + 1))
		scan.Y[i] = float32(rng.Intn(d.Nz - d.Nprb + 1))
		if subpixel {
			scan.X[i] += float32(rng.Float64() * 0.95)
			scan.Y[i] += float32(rng.Float64() * 0.95)
		}
	}
	return scan
}

func widen(v []complex64) []complex128 {
	out := make([]complex128, len(v))
	for i, x := range v {
		out[i] = complex128(x)
	}
	return out
}

// relErr returns ‖got - want‖ / ‖want‖.
func relErr(got, want []complex128) float64 {
	return cmplxs.Distance(got, want, 2) / cmplxs.Norm(want, 2)
}
