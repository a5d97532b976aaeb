// Package grid derives launch grid extents for the operator kernels.
// Every kernel is launched with a fixed block of 32×32×1 threads and a grid
// that covers the logical index space of its workload.
package grid

import (
	"fmt"

	"ptychofft/internal/models"
)

// Block is the thread-block extent used by every kernel launch.
var Block = models.Dim3{X: 32, Y: 32, Z: 1}

// Launch pairs the logical extent of a workload with the grid covering it.
type Launch struct {
	// Extent is the index space the kernel must visit
	Extent models.Dim3

	// Grid is the number of blocks along each axis
	Grid models.Dim3
}

// Blocks returns the total number of blocks in the grid.
func (l Launch) Blocks() int { return l.Grid.Count() }

func (l Launch) String() string {
	return fmt.Sprintf("extent=%dx%dx%d grid=%dx%dx%d",
		l.Extent.X, l.Extent.Y, l.Extent.Z, l.Grid.X, l.Grid.Y, l.Grid.Z)
}

// GridFor computes ceil(extent/Block) along each axis.
func GridFor(extent models.Dim3) models.Dim3 {
	return models.Dim3{
		X: ceilDiv(extent.X, Block.X),
		Y: ceilDiv(extent.Y, Block.Y),
		Z: ceilDiv(extent.Z, Block.Z),
	}
}

// NewLaunch builds the launch for a workload of the given extent.
func NewLaunch(extent models.Dim3) Launch {
	return Launch{Extent: extent, Grid: GridFor(extent)}
}

// Plan holds the launches of the three operator workloads.
type Plan struct {
	// Probe covers every pixel of the probe window for every scan point
	// and angle: (nprb², nscan, ntheta).
	Probe Launch

	// Detector covers every detector pixel for every scan point and angle:
	// (ndetx·ndety, nscan, ntheta).
	Detector Launch

	// Scan covers every scan point and angle: (nscan, ntheta, 1).
	Scan Launch
}

// NewPlan computes the launches from the workload sizes. It is a pure
// function of its arguments.
func NewPlan(ntheta, nscan, nprb, ndetx, ndety int) Plan {
	return Plan{
		Probe:    NewLaunch(models.Dim3{X: nprb * nprb, Y: nscan, Z: ntheta}),
		Detector: NewLaunch(models.Dim3{X: ndetx * ndety, Y: nscan, Z: ntheta}),
		Scan:     NewLaunch(models.Dim3{X: nscan, Y: ntheta, Z: 1}),
	}
}

// PlanFor is NewPlan applied to an operator's dimensions.
func PlanFor(d models.Dims) Plan {
	return NewPlan(d.Ntheta, d.Nscan, d.Nprb, d.Ndetx, d.Ndety)
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
