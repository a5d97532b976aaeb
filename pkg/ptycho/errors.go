package ptycho

import (
	"errors"
	"fmt"

	"ptychofft/internal/models"
)

// Sentinel errors. The typed errors below match them with errors.Is.
var (
	ErrInvalidShape      = errors.New("ptycho: invalid shape")
	ErrShapeMismatch     = errors.New("ptycho: shape mismatch")
	ErrResourceExhausted = errors.New("ptycho: resource exhausted")
	ErrPrecondition      = errors.New("ptycho: precondition violated")
	ErrInvalidTarget     = errors.New("ptycho: invalid adjoint target")
	ErrClosed            = errors.New("ptycho: operator closed")
)

// InvalidShapeError reports construction sizes that violate the operator's
// constraints.
type InvalidShapeError struct {
	Dims   models.Dims
	Reason string
}

func (e *InvalidShapeError) Error() string {
	return fmt.Sprintf("ptycho: invalid shape %+v: %s", e.Dims, e.Reason)
}

func (e *InvalidShapeError) Is(target error) bool { return target == ErrInvalidShape }

// ShapeMismatchError reports a call argument whose length disagrees with
// the sizes fixed at construction.
type ShapeMismatchError struct {
	Arg      string
	Expected int
	Actual   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("ptycho: %s has %d elements, expected %d", e.Arg, e.Actual, e.Expected)
}

func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

// ResourceExhaustedError reports a failed buffer or plan allocation.
type ResourceExhaustedError struct {
	Resource  string
	Requested int64
	Err       error
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("ptycho: allocating %s (%d bytes): %v", e.Resource, e.Requested, e.Err)
}

func (e *ResourceExhaustedError) Is(target error) bool { return target == ErrResourceExhausted }

func (e *ResourceExhaustedError) Unwrap() error { return e.Err }

// PreconditionError reports a scan window outside the object. It is only
// produced when bounds checking is enabled.
type PreconditionError struct {
	Angle, Scan int
	X, Y        float32
	Reason      string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("ptycho: scan point %d of angle %d at (%g, %g): %s", e.Scan, e.Angle, e.X, e.Y, e.Reason)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }
