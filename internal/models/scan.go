package models

import "math"

// Scan holds the scan positions of every scan point for every angle.
// X[a*nscan+s] is the column coordinate and Y[a*nscan+s] the row
// coordinate of scan point s at angle a, both in object pixels.
type Scan struct {
	X []float32
	Y []float32
}

// NewScan allocates zeroed scan positions for ntheta × nscan points.
func NewScan(ntheta, nscan int) Scan {
	return Scan{
		X: make([]float32, ntheta*nscan),
		Y: make([]float32, ntheta*nscan),
	}
}

// Len returns the number of scan points, or -1 if X and Y disagree.
func (s Scan) Len() int {
	if len(s.X) != len(s.Y) {
		return -1
	}
	return len(s.X)
}

// Split returns the integer and fractional part of a scan coordinate.
// The integer part is truncated toward zero so the fraction lies in (-1, 1).
func Split(c float32) (int, float32) {
	whole := float32(math.Trunc(float64(c)))
	return int(whole), c - whole
}

// Dim3 is a three dimensional extent or index, used for launch grids.
type Dim3 struct {
	X, Y, Z int
}

// Count returns X*Y*Z.
func (d Dim3) Count() int { return d.X * d.Y * d.Z }
