package device

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when an allocation exceeds the context's
	// memory budget.
	ErrOutOfMemory = errors.New("device: out of memory")

	// ErrFreed is returned when a released buffer is used.
	ErrFreed = errors.New("device: buffer already freed")

	// ErrLengthMismatch is returned when a host slice does not match the
	// length of the device buffer it is copied to or from.
	ErrLengthMismatch = errors.New("device: length mismatch")
)

// AllocError describes a failed allocation. It matches ErrOutOfMemory.
type AllocError struct {
	Requested int64
	Available int64
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("device: out of memory: requested %d bytes, %d available", e.Requested, e.Available)
}

func (e *AllocError) Is(target error) bool { return target == ErrOutOfMemory }
