package render

import (
	"bytes"
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nmorph/tubemesh/grid"
	"github.com/nmorph/tubemesh/internal/d3"
)

func TestSTLWriteReadback(t *testing.T) {
	const tol = 1e-5
	g := grid.New()
	var c [8]int
	for i, p := range [8]r3.Vec{
		{}, {X: 1}, {X: 1, Y: 1}, {Y: 1},
		{Z: 1}, {X: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {Y: 1, Z: 1},
	} {
		c[i] = g.AddVertex(p)
	}
	g.AddHexahedron(c)

	input, err := RenderAll(NewBoundaryRenderer(g))
	if err != nil {
		t.Fatal(err)
	}
	if len(input) != 12 {
		t.Fatalf("cube boundary triangles: got %d, want 12", len(input))
	}
	var b bytes.Buffer
	err = WriteSTL(&b, input)
	if err != nil {
		t.Fatal(err)
	}
	output, err := readBinarySTL(&b)
	if err != nil && !errors.Is(err, errCalculatedNormalMismatch) {
		t.Fatal(err)
	}
	if len(output) != len(input) {
		t.Fatal("length of triangles written/read not equal")
	}
	mismatches := 0
	for iface, expect := range input {
		got := output[iface]
		if d3.EqualWithin(got[0], got[1], 1e-12) ||
			d3.EqualWithin(got[1], got[2], 1e-12) ||
			d3.EqualWithin(got[2], got[0], 1e-12) {
			t.Fatalf("triangle degenerate: %+v", got)
		}
		for i := range expect {
			if !d3.EqualWithin(got[i], expect[i], tol) {
				mismatches++
				t.Errorf("%dth triangle equality out of tolerance. got vertex %0.5g, want %0.5g", iface, got[i], expect[i])
			}
		}
		if mismatches > 10 {
			t.Fatal("too many mismatches")
		}
	}
}

func TestTriangleBuffering(t *testing.T) {
	var buf triangle3Buffer
	tri := Triangle3{{X: 1}, {Y: 1}, {Z: 1}}
	buf.Write([]Triangle3{tri, tri})
	if buf.Len() != 2 {
		t.Errorf("buffered: got %d, want 2", buf.Len())
	}
	dst := make([]Triangle3, 3)
	n := buf.Read(dst)
	if n != 2 || buf.Len() != 0 {
		t.Errorf("read %d triangles, %d left over", n, buf.Len())
	}
}
