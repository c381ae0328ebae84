package neurite

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// BranchGeometry describes the local geometry where a child neurite
// attaches to its parent. All offsets are world-space lengths; dividing
// by the parent's total length converts them to axial parameter widths.
type BranchGeometry struct {
	// Section is the index of the parent section containing the
	// branching point.
	Section int
	// SurfaceOffset shifts the attachment window along the parent axis
	// to account for the oblique cut of a non-orthogonal branch.
	SurfaceOffset float64
	// HalfLength is half the axial extent of the attachment window.
	HalfLength float64
	// RingOffset is the distance from the branching point to the
	// child's first vertex ring, measured along the child axis.
	RingOffset float64
}

// BranchGeometryAt solves the attachment geometry for child branching off
// parent at axial position t. The section search starts at fromSec; pass
// the current section index when walking a neurite front to back.
//
// With alpha the angle between parent and child directions, the window
// half length is r_child/sin(alpha) and the surface offset is
// (sqrt(2)/2)*r_parent*cos(alpha)/sin(alpha): a branch leaving at a
// shallow angle needs a longer, shifted opening in the parent wall.
func (f *Forest) BranchGeometryAt(parent int, t float64, child int, fromSec int) (BranchGeometry, error) {
	n := &f.Neurites[parent]
	nSec := len(n.Sections)
	brSec := fromSec
	for brSec < nSec {
		if t-n.Sections[brSec].TEnd < 1e-6*t {
			break
		}
		brSec++
	}
	if brSec == nSec {
		return BranchGeometry{}, fmt.Errorf("no section containing branching point at t = %g of neurite %d", t, parent)
	}

	bpRad := f.Radii[parent][brSec+1]

	// child direction at its origin (monomial argument is the first
	// section's full width there)
	cs := &f.Neurites[child].Sections[0]
	te := cs.TEnd
	branchDir := r3.Unit(r3.Vec{
		X: evalCubicVel(cs.X, te),
		Y: evalCubicVel(cs.Y, te),
		Z: evalCubicVel(cs.Z, te),
	})

	// parent direction at the containing section's end
	sec := &n.Sections[brSec]
	neuriteDir := r3.Unit(r3.Vec{X: -sec.X[2], Y: -sec.Y[2], Z: -sec.Z[2]})

	cosA := r3.Dot(neuriteDir, branchDir)
	s2 := 1 - cosA*cosA
	if !(s2 > 0) {
		return BranchGeometry{}, &DegenerateBranchAngleError{Parent: parent, Child: child, T: t}
	}
	sinAlphaInv := 1 / math.Sqrt(s2)

	return BranchGeometry{
		Section:       brSec,
		SurfaceOffset: 0.5 * math.Sqrt2 * bpRad * cosA * sinAlphaInv,
		HalfLength:    f.Radii[child][0] * sinAlphaInv,
		RingOffset:    0.5 * math.Sqrt2 * bpRad * sinAlphaInv,
	}, nil
}
