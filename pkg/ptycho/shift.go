package ptycho

import (
	"math"
	"math/cmplx"

	"ptychofft/internal/models"
)

// Direction of the sub-pixel shift: +1 in the forward operator, -1 in the
// adjoint.
type Direction int

const (
	ShiftForward Direction = 1
	ShiftAdjoint Direction = -1
)

// computeRamp stores, per scan point and axis, the unit phase
// exp(i·2π·dir·c/nprb) where c is the fractional part of the scan
// coordinate. scan holds the coordinates packed as complex(x, y).
func (op *Operator) computeRamp(dir Direction) {
	d := op.dims
	scan := op.scan.Data()
	rampX, rampY := op.rampX.Data(), op.rampY.Data()
	step := 2 * math.Pi * float64(dir) / float64(d.Nprb)

	op.stream.Launch(op.launch.Scan, func(tx, ty, _ int) {
		ind := ty*d.Nscan + tx
		_, fx := models.Split(real(scan[ind]))
		_, fy := models.Split(imag(scan[ind]))
		rampX[ind] = complex64(cmplx.Exp(complex(0, step*float64(fx))))
		rampY[ind] = complex64(cmplx.Exp(complex(0, step*float64(fy))))
	})
}

// applyShift multiplies the spectrum of every probe window, in place in the
// detector buffer, by the ramp raised to the signed spatial frequency of
// each sample. The 1/nprb² factor makes the bracketing FFT/IFFT pair an
// identity when the fractional shift is zero.
func (op *Operator) applyShift() {
	d := op.dims
	det := op.detector.Data()
	rampX, rampY := op.rampX.Data(), op.rampY.Data()
	frame := d.FrameLen()
	scale := 1 / float64(d.Nprb*d.Nprb)

	op.stream.Launch(op.launch.Probe, func(tx, ty, tz int) {
		row, col := tx/d.Nprb, tx%d.Nprb
		ind := tz*d.Nscan + ty

		phase := float64(signedFreq(row, d.Nprb))*cmplx.Phase(complex128(rampY[ind])) +
			float64(signedFreq(col, d.Nprb))*cmplx.Phase(complex128(rampX[ind]))
		s, c := math.Sincos(phase)
		cr, ci := float32(c*scale), float32(s*scale)

		p := &det[ind*frame+row*d.Ndety+col]
		x, y := real(*p), imag(*p)
		*p = complex(x*cr-y*ci, x*ci+y*cr)
	})
}

// shift realizes a sub-pixel translation of every probe window:
// FFT, multiply by the ramp, inverse FFT.
func (op *Operator) shift(dir Direction) error {
	if err := op.prbPlan.Execute(op.detector.Data(), fftForward); err != nil {
		return err
	}
	op.computeRamp(dir)
	op.applyShift()
	return op.prbPlan.Execute(op.detector.Data(), fftInverse)
}

// signedFreq maps an FFT output index to its signed frequency in
// [-n/2, n/2).
func signedFreq(k, n int) int {
	if k >= (n+1)/2 {
		return k - n
	}
	return k
}
