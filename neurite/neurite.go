// Package neurite turns a morphology point tree into a forest of unbranched
// neurites with piecewise cubic spline geometry.
//
// Decompose splits the point graph at branchings into polyline neurites and
// records the branch topology. Fit then parameterizes each neurite by
// normalized cumulative chord length and fits natural cubic splines (moment
// method) through positions and radii, yielding one Section per support
// interval. The fitted forest is the input to the mesh extrusion engine.
package neurite

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nmorph/tubemesh/swc"
)

// Section is one cubic piece of a neurite's parametric curve, covering
// (prevTEnd, TEnd]. Coefficients are stored highest order first and apply
// to the monomial m = TEnd - t, so evaluation near the section end stays
// numerically stable.
type Section struct {
	TEnd       float64
	X, Y, Z, R [4]float64
}

func evalCubic(c [4]float64, m float64) float64 {
	v := c[0]*m + c[1]
	v = v*m + c[2]
	return v*m + c[3]
}

// evalCubicVel is the derivative with respect to t; the inner sign flips
// account for d/dt = -d/dm.
func evalCubicVel(c [4]float64, m float64) float64 {
	v := -3*c[0]*m - 2*c[1]
	return v*m - c[2]
}

// Position returns the fitted curve position at parameter t.
func (s *Section) Position(t float64) r3.Vec {
	m := s.TEnd - t
	return r3.Vec{X: evalCubic(s.X, m), Y: evalCubic(s.Y, m), Z: evalCubic(s.Z, m)}
}

// Velocity returns the curve derivative with respect to t.
func (s *Section) Velocity(t float64) r3.Vec {
	m := s.TEnd - t
	return r3.Vec{X: evalCubicVel(s.X, m), Y: evalCubicVel(s.Y, m), Z: evalCubicVel(s.Z, m)}
}

// Radius returns the fitted radius at parameter t.
func (s *Section) Radius(t float64) float64 {
	return evalCubic(s.R, s.TEnd-t)
}

// BranchingRegion records where a branching point intersects one neurite's
// parametric line: t > 0 on the parent, t = 0 on the child, whose geometric
// origin is the branch point itself. BP indexes Forest.BranchPoints.
type BranchingRegion struct {
	T  float64
	BP int
}

// BranchingPoint is shared by one parent and one child neurite. Neurites
// lists the participant neurite indices, parent first; Regions holds, in
// parallel, the index of each participant's own BranchingRegion record.
type BranchingPoint struct {
	Neurites []int
	Regions  []int
}

// Neurite is one unbranched piece of the morphology with its fitted spline
// sections and branching regions in increasing parametric order. RefDir
// disambiguates the angular origin of cross-section rings.
type Neurite struct {
	RefDir   r3.Vec
	Sections []Section
	Regions  []BranchingRegion

	// Scale and HasER describe the optional inner membrane layer meshed
	// for this neurite.
	Scale float64
	HasER bool
}

// SectionFor returns the index of the first section at or after from whose
// end parameter reaches t. It may return len(Sections) when t lies beyond
// the last section.
func (n *Neurite) SectionFor(from int, t float64) int {
	i := from
	for ; i < len(n.Sections); i++ {
		if n.Sections[i].TEnd >= t {
			break
		}
	}
	return i
}

// PositionAt evaluates the fitted curve position at parameter t.
func (n *Neurite) PositionAt(t float64) r3.Vec {
	return n.Sections[n.sectionIndex(t)].Position(t)
}

// VelocityAt evaluates the curve derivative at parameter t.
func (n *Neurite) VelocityAt(t float64) r3.Vec {
	return n.Sections[n.sectionIndex(t)].Velocity(t)
}

// RadiusAt evaluates the fitted radius at parameter t.
func (n *Neurite) RadiusAt(t float64) float64 {
	return n.Sections[n.sectionIndex(t)].Radius(t)
}

func (n *Neurite) sectionIndex(t float64) int {
	i := n.SectionFor(0, t)
	if i == len(n.Sections) {
		i--
	}
	return i
}

// branchInfo is the decomposition-time record of a branching: the support
// point index within the neurite and the neurites departing there.
type branchInfo struct {
	at       int
	children []int
}

// Forest holds the decomposed morphology: per-neurite support points and
// radii, the fitted neurites, and the branch point arena shared between
// parents and children. Roots lists the neurites attached directly to a
// soma.
type Forest struct {
	Neurites     []Neurite
	Points       [][]r3.Vec
	Radii        [][]float64
	BranchPoints []BranchingPoint
	Roots        []int

	// Soma holds one seed point per detected soma cluster.
	Soma []swc.Point

	bpInfo [][]branchInfo
}

// Length returns the total chord length of neurite nid's support polyline.
func (f *Forest) Length(nid int) float64 {
	pos := f.Points[nid]
	total := 0.0
	for i := 1; i < len(pos); i++ {
		total += r3.Norm(r3.Sub(pos[i], pos[i-1]))
	}
	return total
}
