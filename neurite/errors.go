package neurite

import "fmt"

// DegenerateGeometryError reports a neurite whose support points cannot be
// spline-fitted: fewer than two points, zero total length, or duplicate
// consecutive points.
type DegenerateGeometryError struct {
	Neurite int
	Reason  string
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("neurite %d: degenerate geometry: %s", e.Neurite, e.Reason)
}

// NonPhysicalGeometryError reports a fitted radius that collapses relative
// to the curve velocity, making the length-over-radius integrand unusable.
// Neurite is negative until a caller that knows the neurite index fills
// it in.
type NonPhysicalGeometryError struct {
	Neurite int
	T       float64
	Radius  float64
}

func (e *NonPhysicalGeometryError) Error() string {
	if e.Neurite >= 0 {
		return fmt.Sprintf("neurite %d: non-physical radius %g at t = %g", e.Neurite, e.Radius, e.T)
	}
	return fmt.Sprintf("non-physical radius %g at t = %g", e.Radius, e.T)
}

// DegenerateBranchAngleError reports a child neurite departing collinearly
// with its parent's tangent, which leaves the tube insertion geometry
// undefined.
type DegenerateBranchAngleError struct {
	Parent int
	Child  int
	T      float64
}

func (e *DegenerateBranchAngleError) Error() string {
	return fmt.Sprintf("branch into neurite %d at t = %g of neurite %d is collinear with its parent", e.Child, e.T, e.Parent)
}
