package models

// Dims holds the problem sizes an operator is constructed for.
// All sizes are fixed for the lifetime of the operator.
type Dims struct {
	// Ntheta is the number of projection angles
	Ntheta int `yaml:"ntheta"`

	// Nz and N are the object height (rows) and width (columns) per angle
	Nz int `yaml:"nz"`
	N  int `yaml:"n"`

	// Nscan is the number of scan points per angle
	Nscan int `yaml:"nscan"`

	// Ndetx and Ndety are the detector rows and columns
	Ndetx int `yaml:"ndetx"`
	Ndety int `yaml:"ndety"`

	// Nprb is the width and height of the square probe
	Nprb int `yaml:"nprb"`
}

// ObjectLen is the number of elements in an object array (ntheta × nz × n).
func (d Dims) ObjectLen() int { return d.Ntheta * d.Nz * d.N }

// ProbeLen is the number of elements in a probe array (ntheta × nprb × nprb).
func (d Dims) ProbeLen() int { return d.Ntheta * d.Nprb * d.Nprb }

// ScanLen is the number of scan points across all angles (ntheta × nscan).
func (d Dims) ScanLen() int { return d.Ntheta * d.Nscan }

// FrameLen is the number of pixels in one detector frame (ndetx × ndety).
func (d Dims) FrameLen() int { return d.Ndetx * d.Ndety }

// DetectorLen is the number of elements in the detector data
// (ntheta × nscan × ndetx × ndety).
func (d Dims) DetectorLen() int { return d.ScanLen() * d.FrameLen() }

// Target selects which gradient the adjoint operator produces.
type Target int

const (
	// TargetObject accumulates the gradient into an object-shaped array
	TargetObject Target = iota
	// TargetProbe accumulates the gradient into a probe-shaped array
	TargetProbe
)

func (t Target) String() string {
	switch t {
	case TargetObject:
		return "object"
	case TargetProbe:
		return "probe"
	default:
		return "unknown"
	}
}
