package neurite_test

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nmorph/tubemesh/neurite"
	"github.com/nmorph/tubemesh/swc"
)

func pt(kind swc.Kind, x, y, z, r float64, conns ...int) swc.Point {
	return swc.Point{Kind: kind, Coords: r3.Vec{X: x, Y: y, Z: z}, Radius: r, Conns: conns}
}

// yMorphology is a straight trunk on the x axis with one perpendicular
// branch leaving halfway along.
func yMorphology() []swc.Point {
	return []swc.Point{
		pt(swc.Soma, 0, 0, 0, 5, 1),
		pt(swc.Dendrite, 1, 0, 0, 1, 0, 2),
		pt(swc.Dendrite, 2, 0, 0, 1, 1, 3),
		pt(swc.Dendrite, 3, 0, 0, 1, 2, 4, 6),
		pt(swc.Dendrite, 4, 0, 0, 1, 3, 5),
		pt(swc.Dendrite, 5, 0, 0, 1, 4),
		pt(swc.Dendrite, 3, 1, 0, 1, 3, 7),
		pt(swc.Dendrite, 3, 2, 0, 1, 6),
	}
}

// crossMorphology branches twice at the same trunk point, once toward +y
// and once toward -y.
func crossMorphology() []swc.Point {
	return []swc.Point{
		pt(swc.Soma, 0, 0, 0, 5, 1),
		pt(swc.Dendrite, 1, 0, 0, 1, 0, 2),
		pt(swc.Dendrite, 2, 0, 0, 1, 1, 3),
		pt(swc.Dendrite, 3, 0, 0, 1, 2, 4, 6, 8),
		pt(swc.Dendrite, 4, 0, 0, 1, 3, 5),
		pt(swc.Dendrite, 5, 0, 0, 1, 4),
		pt(swc.Dendrite, 3, 1, 0, 1, 3, 7),
		pt(swc.Dendrite, 3, 2, 0, 1, 6),
		pt(swc.Dendrite, 3, -1, 0, 1, 3, 9),
		pt(swc.Dendrite, 3, -2, 0, 1, 8),
	}
}

func straightMorphology() []swc.Point {
	return []swc.Point{
		pt(swc.Soma, 0, 0, 0, 5, 1),
		pt(swc.Dendrite, 1, 0, 0, 1, 0, 2),
		pt(swc.Dendrite, 2, 0, 0, 1, 1, 3),
		pt(swc.Dendrite, 3, 0, 0, 1, 2, 4),
		pt(swc.Dendrite, 4, 0, 0, 1, 3, 5),
		pt(swc.Dendrite, 5, 0, 0, 1, 4),
	}
}

func mustDecompose(t *testing.T, pts []swc.Point) *neurite.Forest {
	t.Helper()
	f, err := neurite.Decompose(pts)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	return f
}

func mustForest(t *testing.T, pts []swc.Point) *neurite.Forest {
	t.Helper()
	f := mustDecompose(t, pts)
	if err := f.Fit(); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return f
}

func vecClose(a, b r3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

func TestDecomposeSplitsAtBranch(t *testing.T) {
	f := mustDecompose(t, yMorphology())

	if len(f.Points) != 2 {
		t.Fatalf("got %d neurites, want 2", len(f.Points))
	}
	if len(f.Roots) != 1 || f.Roots[0] != 0 {
		t.Fatalf("got roots %v, want [0]", f.Roots)
	}
	if len(f.Soma) != 1 {
		t.Fatalf("got %d soma points, want 1", len(f.Soma))
	}

	// the collinear child continues the trunk
	wantTrunk := []r3.Vec{{X: 1}, {X: 2}, {X: 3}, {X: 4}, {X: 5}}
	if len(f.Points[0]) != len(wantTrunk) {
		t.Fatalf("trunk has %d points, want %d", len(f.Points[0]), len(wantTrunk))
	}
	for i, want := range wantTrunk {
		if !vecClose(f.Points[0][i], want, 0) {
			t.Errorf("trunk point %d = %v, want %v", i, f.Points[0][i], want)
		}
	}

	// the branch child starts at the branch point, inheriting its
	// position and radius
	wantBranch := []r3.Vec{{X: 3}, {X: 3, Y: 1}, {X: 3, Y: 2}}
	if len(f.Points[1]) != len(wantBranch) {
		t.Fatalf("branch has %d points, want %d", len(f.Points[1]), len(wantBranch))
	}
	for i, want := range wantBranch {
		if !vecClose(f.Points[1][i], want, 0) {
			t.Errorf("branch point %d = %v, want %v", i, f.Points[1][i], want)
		}
	}
	if f.Radii[1][0] != 1 {
		t.Errorf("branch start radius = %g, want 1", f.Radii[1][0])
	}
}

func TestDecomposeTieBreaksOnFirstChild(t *testing.T) {
	// both children leave the branch at 45 degrees; the one listed
	// first must continue the trunk
	pts := []swc.Point{
		pt(swc.Soma, 0, 0, 0, 5, 1),
		pt(swc.Dendrite, 1, 0, 0, 1, 0, 2),
		pt(swc.Dendrite, 2, 0, 0, 1, 1, 3, 5),
		pt(swc.Dendrite, 3, 1, 0, 1, 2, 4),
		pt(swc.Dendrite, 4, 2, 0, 1, 3),
		pt(swc.Dendrite, 3, -1, 0, 1, 2, 6),
		pt(swc.Dendrite, 4, -2, 0, 1, 5),
	}
	f := mustDecompose(t, pts)
	if len(f.Points) != 2 {
		t.Fatalf("got %d neurites, want 2", len(f.Points))
	}
	if got, want := f.Points[0][2], (r3.Vec{X: 3, Y: 1}); !vecClose(got, want, 0) {
		t.Errorf("trunk continues toward %v, want %v", got, want)
	}
}

func TestDecomposeTwoChildrenShareBranchPoint(t *testing.T) {
	f := mustDecompose(t, crossMorphology())
	if len(f.Points) != 3 {
		t.Fatalf("got %d neurites, want 3", len(f.Points))
	}
	// children are popped most recent first
	if got, want := f.Points[1][1], (r3.Vec{X: 3, Y: -1}); !vecClose(got, want, 0) {
		t.Errorf("first child heads toward %v, want %v", got, want)
	}
	if got, want := f.Points[2][1], (r3.Vec{X: 3, Y: 1}); !vecClose(got, want, 0) {
		t.Errorf("second child heads toward %v, want %v", got, want)
	}
	for nid := 1; nid <= 2; nid++ {
		if got, want := f.Points[nid][0], (r3.Vec{X: 3}); !vecClose(got, want, 0) {
			t.Errorf("child %d starts at %v, want %v", nid, got, want)
		}
	}
}

func TestDecomposeBareSomaCluster(t *testing.T) {
	// an isolated cell body contributes a soma record but no neurite
	// and must not shift the indices of the next neuron
	pts := []swc.Point{
		pt(swc.Soma, 10, 10, 10, 2),
		pt(swc.Soma, 0, 0, 0, 5, 2),
		pt(swc.Dendrite, 1, 0, 0, 1, 1, 3),
		pt(swc.Dendrite, 2, 0, 0, 1, 2),
	}
	f := mustDecompose(t, pts)
	if len(f.Soma) != 2 {
		t.Fatalf("got %d soma points, want 2", len(f.Soma))
	}
	if len(f.Points) != 1 {
		t.Fatalf("got %d neurites, want 1", len(f.Points))
	}
	if len(f.Roots) != 1 || f.Roots[0] != 0 {
		t.Fatalf("got roots %v, want [0]", f.Roots)
	}
	if len(f.Points[0]) != 2 {
		t.Fatalf("neurite has %d points, want 2", len(f.Points[0]))
	}
}

func TestDecomposeMultiPointSoma(t *testing.T) {
	pts := []swc.Point{
		pt(swc.Soma, 0, 0, 0, 5, 1),
		pt(swc.Soma, 1, 0, 0, 5, 0, 2),
		pt(swc.Dendrite, 2, 0, 0, 1, 1, 3),
		pt(swc.Dendrite, 3, 0, 0, 1, 2),
	}
	f := mustDecompose(t, pts)
	if len(f.Soma) != 1 {
		t.Fatalf("got %d soma records, want 1 per cluster", len(f.Soma))
	}
	if len(f.Points) != 1 || len(f.Points[0]) != 2 {
		t.Fatalf("got %d neurites, want a single two-point neurite", len(f.Points))
	}
	if got, want := f.Points[0][0], (r3.Vec{X: 2}); !vecClose(got, want, 0) {
		t.Errorf("neurite starts at %v, want %v", got, want)
	}
}

func TestDecomposeErrors(t *testing.T) {
	cases := []struct {
		name string
		pts  []swc.Point
	}{
		{
			name: "no soma",
			pts: []swc.Point{
				pt(swc.Dendrite, 0, 0, 0, 1, 1),
				pt(swc.Dendrite, 1, 0, 0, 1, 0),
			},
		},
		{
			name: "two somata in one neuron",
			pts: []swc.Point{
				pt(swc.Soma, 0, 0, 0, 5, 1),
				pt(swc.Dendrite, 1, 0, 0, 1, 0, 2),
				pt(swc.Soma, 2, 0, 0, 5, 1),
			},
		},
		{
			name: "cycle",
			pts: []swc.Point{
				pt(swc.Soma, 0, 0, 0, 5, 1),
				pt(swc.Dendrite, 1, 0, 0, 1, 0, 2, 3),
				pt(swc.Dendrite, 2, 0.5, 0, 1, 1, 3),
				pt(swc.Dendrite, 2, -0.5, 0, 1, 2, 1),
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := neurite.Decompose(c.pts)
			var ferr *swc.FormatError
			if !errors.As(err, &ferr) {
				t.Fatalf("got error %v, want *swc.FormatError", err)
			}
		})
	}
}
