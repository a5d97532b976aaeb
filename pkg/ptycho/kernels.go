package ptycho

import (
	"ptychofft/internal/models"
	"ptychofft/pkg/device"
)

// window returns, for the thread handling pixel tx of the probe window of
// scan point ty at angle tz, the probe index, the detector index, and the
// object index the pixel maps to.
func (op *Operator) window(scan []complex64, tx, ty, tz int) (prb, det, obj int) {
	d := op.dims
	row, col := tx/d.Nprb, tx%d.Nprb
	ind := tz*d.Nscan + ty

	ix, _ := models.Split(real(scan[ind]))
	iy, _ := models.Split(imag(scan[ind]))

	prb = (tz*d.Nprb+row)*d.Nprb + col
	det = ind*d.FrameLen() + row*d.Ndety + col
	obj = (tz*d.Nz+iy+row)*d.N + ix + col
	return prb, det, obj
}

// extract writes object·probe for every probe window into the top-left
// corner of its detector frame. The detector must be zeroed beforehand.
func (op *Operator) extract() {
	scan, obj, prb, det := op.scan.Data(), op.object.Data(), op.probe.Data(), op.detector.Data()

	op.stream.Launch(op.launch.Probe, func(tx, ty, tz int) {
		p, g, f := op.window(scan, tx, ty, tz)
		det[g] = obj[f] * prb[p]
	})
}

// multiplyProbe multiplies every probe window in the detector by the probe.
func (op *Operator) multiplyProbe() {
	scan, prb, det := op.scan.Data(), op.probe.Data(), op.detector.Data()

	op.stream.Launch(op.launch.Probe, func(tx, ty, tz int) {
		p, g, _ := op.window(scan, tx, ty, tz)
		det[g] *= prb[p]
	})
}

// restrictConjProbe multiplies each probe window by the conjugate probe and
// zeroes every detector pixel outside the window.
func (op *Operator) restrictConjProbe() {
	d := op.dims
	prb, det := op.probe.Data(), op.detector.Data()
	frame := d.FrameLen()

	op.stream.Launch(op.launch.Detector, func(tx, ty, tz int) {
		row, col := tx/d.Ndety, tx%d.Ndety
		g := (tz*d.Nscan+ty)*frame + tx
		if row >= d.Nprb || col >= d.Nprb {
			det[g] = 0
			return
		}
		det[g] *= conj(prb[(tz*d.Nprb+row)*d.Nprb+col])
	})
}

// accumulateObject scatter-adds conj(probe)·window into the object buffer.
// Windows of different scan points overlap, so every add is atomic.
func (op *Operator) accumulateObject() {
	scan, obj, prb, det := op.scan.Data(), op.object.Data(), op.probe.Data(), op.detector.Data()

	op.stream.Launch(op.launch.Probe, func(tx, ty, tz int) {
		p, g, f := op.window(scan, tx, ty, tz)
		device.AtomicAdd(&obj[f], det[g]*conj(prb[p]))
	})
}

// accumulateProbe scatter-adds conj(object window)·window into the probe
// gradient buffer. Every scan point of an angle adds into the same probe,
// so every add is atomic.
func (op *Operator) accumulateProbe() {
	scan, obj, grad, det := op.scan.Data(), op.object.Data(), op.probeGrad.Data(), op.detector.Data()

	op.stream.Launch(op.launch.Probe, func(tx, ty, tz int) {
		p, g, f := op.window(scan, tx, ty, tz)
		device.AtomicAdd(&grad[p], det[g]*conj(obj[f]))
	})
}

func conj(v complex64) complex64 {
	return complex(real(v), -imag(v))
}
