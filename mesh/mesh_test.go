package mesh_test

import (
	"math"
	"strings"
	"testing"

	"github.com/deadsy/sdfx/sdf"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nmorph/tubemesh/mesh"
	"github.com/nmorph/tubemesh/neurite"
	"github.com/nmorph/tubemesh/swc"
)

func pt(kind swc.Kind, x, y, z, r float64, conns ...int) swc.Point {
	return swc.Point{Kind: kind, Coords: r3.Vec{X: x, Y: y, Z: z}, Radius: r, Conns: conns}
}

// straight tube of constant radius 1 along the x axis, length 4
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

// straight trunk with one perpendicular branch leaving halfway along
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

// trunk with two branches leaving at the same point
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

func mustForest(t *testing.T, pts []swc.Point) *neurite.Forest {
	t.Helper()
	f, err := neurite.Decompose(pts)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if err := f.Fit(); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return f
}

// checkOnSurface verifies that every parameterized vertex sits at its
// radial fraction of the local radius away from the spline position its
// axial parameter names.
func checkOnSurface(t *testing.T, b *mesh.Builder, tol float64) {
	t.Helper()
	g := b.Grid
	for v := 0; v < g.VertexSlots(); v++ {
		if !g.VertexAlive(v) {
			continue
		}
		p := b.Param(v)
		if p.Axial < 0 || p.Axial > 1 || p.Radial == 0 {
			continue
		}
		n := &b.Forest.Neurites[p.Neurite()]
		want := p.Radial * n.RadiusAt(p.Axial)
		got := r3.Norm(r3.Sub(g.Pos(v), n.PositionAt(p.Axial)))
		if math.Abs(got-want) > tol {
			t.Errorf("vertex %d: distance %g from axis at axial %g, want %g", v, got, p.Axial, want)
		}
	}
}

func TestSurfaceParamLineage(t *testing.T) {
	p := mesh.SurfaceParam{NeuriteID: 5 + 3<<20 + 1<<28}
	if p.Neurite() != 5 {
		t.Errorf("Neurite: got %d, want 5", p.Neurite())
	}
	if p.BranchRegion() != 3 {
		t.Errorf("BranchRegion: got %d, want 3", p.BranchRegion())
	}
	if !p.OnBranch() {
		t.Error("OnBranch: got false, want true")
	}
	if (mesh.SurfaceParam{NeuriteID: 7}).OnBranch() {
		t.Error("plain neurite ID reports OnBranch")
	}
}

func TestBuildNeuriteStraight(t *testing.T) {
	f := mustForest(t, straightMorphology())
	b := mesh.NewBuilder(f)
	if err := b.BuildNeurite(f.Roots[0]); err != nil {
		t.Fatalf("BuildNeurite: %v", err)
	}
	g := b.Grid

	// 4 radii of length over radius make one segment at anisotropy 2:
	// two rings, one hexahedron, and the merged tip vertex
	if n := g.NumVertices(); n != 9 {
		t.Errorf("vertices: got %d, want 9", n)
	}
	if n := g.NumEdges(); n != 16 {
		t.Errorf("edges: got %d, want 16", n)
	}
	if n := g.NumFaces(); n != 10 {
		t.Errorf("faces: got %d, want 10", n)
	}
	if n := g.NumVolumes(); n != 1 {
		t.Errorf("volumes: got %d, want 1", n)
	}

	tris := 0
	for fi := 0; fi < g.FaceSlots(); fi++ {
		if g.FaceAlive(fi) && len(g.FaceVertices(fi)) == 3 {
			tris++
		}
	}
	if tris != 4 {
		t.Errorf("tip triangles: got %d, want 4", tris)
	}

	var tip, tips int = -1, 0
	for v := 0; v < g.VertexSlots(); v++ {
		if g.VertexAlive(v) && b.Param(v).Axial == 2 {
			tip = v
			tips++
		}
	}
	if tips != 1 {
		t.Fatalf("tip vertices: got %d, want 1", tips)
	}
	// the tip sits one radius beyond the spline end
	if want := (r3.Vec{X: 6}); r3.Norm(r3.Sub(g.Pos(tip), want)) > 1e-6 {
		t.Errorf("tip position: got %v, want %v", g.Pos(tip), want)
	}

	checkOnSurface(t, b, 1e-6)
}

func TestBuildNeuriteBranch(t *testing.T) {
	f := mustForest(t, yMorphology())
	b := mesh.NewBuilder(f)
	if err := b.BuildNeurite(f.Roots[0]); err != nil {
		t.Fatalf("BuildNeurite: %v", err)
	}
	g := b.Grid

	// one segment to the window, the window hexahedron, one segment
	// behind it, and one segment of the child
	if n := g.NumVolumes(); n != 4 {
		t.Errorf("volumes: got %d, want 4", n)
	}

	var seam []int
	tips := 0
	for v := 0; v < g.VertexSlots(); v++ {
		if !g.VertexAlive(v) {
			continue
		}
		if b.Param(v).OnBranch() {
			seam = append(seam, v)
		}
		if b.Param(v).Axial == 2 {
			tips++
		}
	}
	if tips != 2 {
		t.Errorf("tip vertices: got %d, want 2", tips)
	}
	if len(seam) != 4 {
		t.Fatalf("seam vertices: got %d, want 4", len(seam))
	}
	for _, v := range seam {
		if nid := b.Param(v).Neurite(); nid != f.Roots[0] {
			t.Errorf("seam vertex %d: neurite %d, want %d", v, nid, f.Roots[0])
		}
	}

	// the branch window face is interior: the parent hexahedron on one
	// side, the child's first volume on the other
	wf, ok := g.FindFace(seam...)
	if !ok {
		t.Fatal("branch window face missing")
	}
	if nv := len(g.VolumesOfFace(wf)); nv != 2 {
		t.Errorf("window face volumes: got %d, want 2", nv)
	}

	checkOnSurface(t, b, 1e-6)
}

func TestBuildNeuriteRejectsDoubleBranch(t *testing.T) {
	f := mustForest(t, crossMorphology())
	b := mesh.NewBuilder(f)
	err := b.BuildNeurite(f.Roots[0])
	if err == nil {
		t.Fatal("BuildNeurite accepted a branching point with two children")
	}
	if !strings.Contains(err.Error(), "only one is supported") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildNeuriteERStraight(t *testing.T) {
	f := mustForest(t, straightMorphology())
	b := mesh.NewBuilder(f)
	if err := b.BuildNeuriteER(f.Roots[0]); err != nil {
		t.Fatalf("BuildNeuriteER: %v", err)
	}
	g := b.Grid

	// one segment: two sixteen-vertex rings, nine volumes, no tip
	if n := g.NumVertices(); n != 32 {
		t.Errorf("vertices: got %d, want 32", n)
	}
	if n := g.NumEdges(); n != 64 {
		t.Errorf("edges: got %d, want 64", n)
	}
	if n := g.NumFaces(); n != 42 {
		t.Errorf("faces: got %d, want 42", n)
	}
	if n := g.NumVolumes(); n != 9 {
		t.Errorf("volumes: got %d, want 9", n)
	}

	volBySubset := map[int]int{}
	for v := 0; v < g.VolumeSlots(); v++ {
		if g.VolumeAlive(v) {
			volBySubset[g.VolumeSubset(v)]++
		}
	}
	if volBySubset[mesh.SubsetER] != 1 || volBySubset[mesh.SubsetCytosol] != 8 {
		t.Errorf("volume subsets: got %v, want 1 lumen and 8 cytosol", volBySubset)
	}

	faceBySubset := map[int]int{}
	for fi := 0; fi < g.FaceSlots(); fi++ {
		if g.FaceAlive(fi) {
			faceBySubset[g.FaceSubset(fi)]++
		}
	}
	want := map[int]int{
		mesh.SubsetCytosol:    24,
		mesh.SubsetER:         2,
		mesh.SubsetMembrane:   12,
		mesh.SubsetERMembrane: 4,
	}
	for si, n := range want {
		if faceBySubset[si] != n {
			t.Errorf("faces in subset %d: got %d, want %d", si, faceBySubset[si], n)
		}
	}

	edgeBySubset := map[int]int{}
	for e := 0; e < g.EdgeSlots(); e++ {
		if g.EdgeAlive(e) {
			edgeBySubset[g.EdgeSubset(e)]++
		}
	}
	wantEdges := map[int]int{
		mesh.SubsetCytosol:    24,
		mesh.SubsetMembrane:   28,
		mesh.SubsetERMembrane: 12,
	}
	for si, n := range wantEdges {
		if edgeBySubset[si] != n {
			t.Errorf("edges in subset %d: got %d, want %d", si, edgeBySubset[si], n)
		}
	}

	inner, outer := 0, 0
	for v := 0; v < g.VertexSlots(); v++ {
		if !g.VertexAlive(v) {
			continue
		}
		switch g.VertexSubset(v) {
		case mesh.SubsetERMembrane:
			inner++
			if r := b.Param(v).Radial; r != 0.5 {
				t.Errorf("inner vertex %d: radial %g, want 0.5", v, r)
			}
		case mesh.SubsetMembrane:
			outer++
		}
	}
	if inner != 8 || outer != 24 {
		t.Errorf("vertex subsets: got %d inner, %d outer, want 8 and 24", inner, outer)
	}

	checkOnSurface(t, b, 1e-6)
}

func TestBuildNeuriteERBranch(t *testing.T) {
	f := mustForest(t, yMorphology())
	b := mesh.NewBuilder(f)
	if err := b.BuildNeuriteER(f.Roots[0]); err != nil {
		t.Fatalf("BuildNeuriteER: %v", err)
	}
	g := b.Grid

	// trunk: one segment, the three window slices, one segment behind;
	// child: one segment
	if n := g.NumVolumes(); n != 54 {
		t.Errorf("volumes: got %d, want 54", n)
	}

	// lumen chain through every extrusion plus the rerouted window volume
	lumen := 0
	for v := 0; v < g.VolumeSlots(); v++ {
		if g.VolumeAlive(v) && g.VolumeSubset(v) == mesh.SubsetER {
			lumen++
		}
	}
	if lumen != 7 {
		t.Errorf("lumen volumes: got %d, want 7", lumen)
	}

	child := f.BranchPoints[0].Neurites[1]
	onBranch, childER, handed := 0, 0, 0
	for v := 0; v < g.VertexSlots(); v++ {
		if !g.VertexAlive(v) {
			continue
		}
		p := b.Param(v)
		if p.OnBranch() {
			onBranch++
			continue
		}
		if p.Neurite() != child || g.VertexSubset(v) != mesh.SubsetERMembrane {
			continue
		}
		childER++
		// the four lateral vertices handed over at the seam sit well
		// before the child's own first ring and take the inner radius
		if p.Axial < 0.5 {
			handed++
			if p.Radial != 0.5 {
				t.Errorf("handed vertex %d: radial %g, want 0.5", v, p.Radial)
			}
		}
	}
	if onBranch != 16 {
		t.Errorf("tagged window vertices: got %d, want 16", onBranch)
	}
	if childER != 8 {
		t.Errorf("child ER membrane vertices: got %d, want 8", childER)
	}
	if handed != 4 {
		t.Errorf("handed-over lateral vertices: got %d, want 4", handed)
	}
}

// TestBuildNeuriteStraightAgainstCylinder checks the generated surface
// against the signed distance field of the cylinder the straight
// morphology describes.
func TestBuildNeuriteStraightAgainstCylinder(t *testing.T) {
	f := mustForest(t, straightMorphology())
	b := mesh.NewBuilder(f)
	if err := b.BuildNeurite(f.Roots[0]); err != nil {
		t.Fatalf("BuildNeurite: %v", err)
	}
	cyl, err := sdf.Cylinder3D(4, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	g := b.Grid
	for v := 0; v < g.VertexSlots(); v++ {
		if !g.VertexAlive(v) {
			continue
		}
		p := b.Param(v)
		pos := g.Pos(v)
		// the cylinder is centered on the origin along z, the tube runs
		// along x from 1 to 5
		q := sdf.V3{X: pos.Y, Y: pos.Z, Z: pos.X - 3}
		d := cyl.Evaluate(q)
		switch {
		case p.Radial == 1 && p.Axial >= 0 && p.Axial <= 1:
			if math.Abs(d) > 1e-6 {
				t.Errorf("vertex %d: distance %g from cylinder surface", v, d)
			}
		case p.Axial == 2:
			// the tip apex sits one radius beyond the cylinder cap
			if math.Abs(d-1) > 1e-6 {
				t.Errorf("tip vertex %d: distance %g from cylinder, want 1", v, d)
			}
		}
	}
}

// TestBuildNeuriteTwoPointDendrite builds the smallest meshable
// morphology, a dendrite with a single support segment.
func TestBuildNeuriteTwoPointDendrite(t *testing.T) {
	pts := []swc.Point{
		pt(swc.Soma, -1, 0, 0, 0.1, 1),
		pt(swc.Dendrite, 0, 0, 0, 0.1, 0, 2),
		pt(swc.Dendrite, 1, 0, 0, 0.1, 1),
	}
	f := mustForest(t, pts)
	n := &f.Neurites[f.Roots[0]]
	if len(n.Sections) != 1 {
		t.Fatalf("sections: got %d, want 1", len(n.Sections))
	}
	b := mesh.NewBuilder(f)
	if err := b.BuildNeurite(f.Roots[0]); err != nil {
		t.Fatalf("BuildNeurite: %v", err)
	}
	g := b.Grid
	// length over radius is 10, so the default anisotropy of 2 gives
	// floor(10/pi) = 3 segments
	if g.NumVolumes() != 3 {
		t.Errorf("volumes: got %d, want 3", g.NumVolumes())
	}
	if g.NumVertices() != 17 {
		t.Errorf("vertices: got %d, want 17", g.NumVertices())
	}
	tips := 0
	for v := 0; v < g.VertexSlots(); v++ {
		if !g.VertexAlive(v) || b.Param(v).Axial != 2 {
			continue
		}
		tips++
		want := r3.Vec{X: 1.1}
		if d := r3.Norm(r3.Sub(g.Pos(v), want)); d > 1e-6 {
			t.Errorf("tip vertex %d at %v, want %v", v, g.Pos(v), want)
		}
	}
	if tips != 1 {
		t.Errorf("tip vertices: got %d, want 1", tips)
	}
}

// TestBuildNeuriteWindingSegmentCount checks that the number of rings
// along a winding, tapering neurite follows the length over radius
// integral and the anisotropy setting.
func TestBuildNeuriteWindingSegmentCount(t *testing.T) {
	pts := []swc.Point{
		pt(swc.Soma, -1, 0, 0, 0.05, 1),
		pt(swc.Dendrite, 0, 0, 0, 0.05, 0, 2),
		pt(swc.Dendrite, 1, 0, 0, 0.1, 1, 3),
		pt(swc.Dendrite, 3, 1, 0, 0.2, 2, 4),
		pt(swc.Dendrite, 5, 1, 1, 0.15, 3, 5),
		pt(swc.Dendrite, 7, 0, 0, 0.05, 4),
	}
	f := mustForest(t, pts)
	n := &f.Neurites[f.Roots[0]]
	if len(n.Sections) != 4 {
		t.Fatalf("sections: got %d, want 4", len(n.Sections))
	}
	lor, err := neurite.LengthOverRadius(n, 0, 1, 0)
	if err != nil {
		t.Fatalf("LengthOverRadius: %v", err)
	}
	const anisotropy = 8
	nSeg := int(math.Floor(lor / (anisotropy * 0.5 * math.Pi)))
	if nSeg < 1 {
		nSeg = 1
	}
	b := mesh.NewBuilder(f)
	b.Anisotropy = anisotropy
	if err := b.BuildNeurite(f.Roots[0]); err != nil {
		t.Fatalf("BuildNeurite: %v", err)
	}
	g := b.Grid
	if want := 4*(nSeg+1) + 1; g.NumVertices() != want {
		t.Errorf("vertices: got %d, want %d (lor %g)", g.NumVertices(), want, lor)
	}
	if g.NumVolumes() != nSeg {
		t.Errorf("volumes: got %d, want %d", g.NumVolumes(), nSeg)
	}
}
