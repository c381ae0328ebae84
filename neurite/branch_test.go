package neurite_test

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nmorph/tubemesh/neurite"
)

func TestBranchGeometryPerpendicular(t *testing.T) {
	// a branch leaving at a right angle needs no axial shift and a
	// window of exactly one child radius on either side
	f := mustForest(t, yMorphology())

	geom, err := f.BranchGeometryAt(0, 0.5, 1, 0)
	if err != nil {
		t.Fatalf("BranchGeometryAt: %v", err)
	}
	if geom.Section != 1 {
		t.Errorf("containing section = %d, want 1", geom.Section)
	}
	if math.Abs(geom.SurfaceOffset) > 1e-12 {
		t.Errorf("surface offset = %g, want 0", geom.SurfaceOffset)
	}
	if absDiff(geom.HalfLength, 1) > 1e-12 {
		t.Errorf("half length = %g, want child radius 1", geom.HalfLength)
	}
	if want := 0.5 * math.Sqrt2; absDiff(geom.RingOffset, want) > 1e-12 {
		t.Errorf("ring offset = %g, want %g", geom.RingOffset, want)
	}
}

func TestBranchGeometryOblique(t *testing.T) {
	// same trunk, branch leaving at 45 degrees
	pts := yMorphology()
	pts[6] = pt(pts[6].Kind, 4, 1, 0, 1, 3, 7)
	pts[7] = pt(pts[7].Kind, 5, 2, 0, 1, 6)
	f := mustForest(t, pts)

	geom, err := f.BranchGeometryAt(0, 0.5, 1, 0)
	if err != nil {
		t.Fatalf("BranchGeometryAt: %v", err)
	}
	cosA := 1 / math.Sqrt2
	sinInv := math.Sqrt2
	if want := 0.5 * math.Sqrt2 * cosA * sinInv; absDiff(geom.SurfaceOffset, want) > 1e-9 {
		t.Errorf("surface offset = %g, want %g", geom.SurfaceOffset, want)
	}
	if want := sinInv; absDiff(geom.HalfLength, want) > 1e-9 {
		t.Errorf("half length = %g, want %g", geom.HalfLength, want)
	}
	if want := 0.5 * math.Sqrt2 * sinInv; absDiff(geom.RingOffset, want) > 1e-9 {
		t.Errorf("ring offset = %g, want %g", geom.RingOffset, want)
	}
}

func TestBranchGeometryCollinearChild(t *testing.T) {
	f := &neurite.Forest{
		Points: [][]r3.Vec{
			{{}, {X: 1}, {X: 2}, {X: 3}, {X: 4}},
			{{X: 2}, {X: 3}, {X: 4}},
		},
		Radii: [][]float64{{1, 1, 1, 1, 1}, {1, 1, 1}},
	}
	if err := f.Fit(); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	_, err := f.BranchGeometryAt(0, 0.5, 1, 0)
	var derr *neurite.DegenerateBranchAngleError
	if !errors.As(err, &derr) {
		t.Fatalf("got error %v, want *DegenerateBranchAngleError", err)
	}
	if derr.Parent != 0 || derr.Child != 1 {
		t.Errorf("error names parent %d child %d, want 0 and 1", derr.Parent, derr.Child)
	}
}

func TestBranchGeometryBeyondNeurite(t *testing.T) {
	f := mustForest(t, yMorphology())
	if _, err := f.BranchGeometryAt(0, 2, 1, 0); err == nil {
		t.Fatal("no section contains t = 2, want error")
	}
}
