// Package grid implements a mutable unstructured grid of vertices, edges,
// quadrilateral/triangular faces and hexahedral volumes.
//
// Element identifiers are stable across mutations. Erased elements leave
// tombstones behind so that identifiers held by callers never shift; the
// usual iteration pattern is
//
//	for v := 0; v < g.VertexSlots(); v++ {
//		if !g.VertexAlive(v) {
//			continue
//		}
//		...
//	}
//
// Every element carries a subset index used to partition the grid into named
// regions (plasma membrane, cytosol and so on). Newly created elements are
// placed in the default subset.
package grid

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// ExtrudeFlag controls which higher-dimensional elements Extrude creates
// alongside the translated vertex/edge/face images.
type ExtrudeFlag uint8

const (
	// CreateFaces requests one side quadrilateral per extruded edge.
	CreateFaces ExtrudeFlag = 1 << iota
	// CreateVolumes requests one hexahedron per extruded quadrilateral.
	CreateVolumes
)

// Grid is a mutable hybrid mesh. The zero value is empty and ready to use.
type Grid struct {
	pos      []r3.Vec
	vrtAlive []bool
	vrtSub   []int

	edges     [][2]int
	edgeAlive []bool
	edgeSub   []int

	// faces[i][3] < 0 marks a triangle.
	faces     [][4]int
	faceAlive []bool
	faceSub   []int

	vols     [][8]int
	volAlive []bool
	volSub   []int

	defaultSub int

	subNames  []string
	subColors [][4]float64

	edgeIndex map[[2]int]int
	faceIndex map[[4]int]int
	vrtEdges  map[int][]int
	faceVols  map[int][]int
}

// New returns an empty grid with default subset 0.
func New() *Grid {
	return &Grid{
		edgeIndex: make(map[[2]int]int),
		faceIndex: make(map[[4]int]int),
		vrtEdges:  make(map[int][]int),
		faceVols:  make(map[int][]int),
	}
}

func (g *Grid) init() {
	if g.edgeIndex == nil {
		g.edgeIndex = make(map[[2]int]int)
		g.faceIndex = make(map[[4]int]int)
		g.vrtEdges = make(map[int][]int)
		g.faceVols = make(map[int][]int)
	}
}

// SetDefaultSubset sets the subset assigned to elements created afterwards.
func (g *Grid) SetDefaultSubset(si int) { g.defaultSub = si }

// DefaultSubset returns the subset assigned to newly created elements.
func (g *Grid) DefaultSubset() int { return g.defaultSub }

// AddVertex creates a vertex at p and returns its identifier.
func (g *Grid) AddVertex(p r3.Vec) int {
	g.init()
	id := len(g.pos)
	g.pos = append(g.pos, p)
	g.vrtAlive = append(g.vrtAlive, true)
	g.vrtSub = append(g.vrtSub, g.defaultSub)
	return id
}

// Pos returns the position of vertex v.
func (g *Grid) Pos(v int) r3.Vec { return g.pos[v] }

// SetPos moves vertex v to p.
func (g *Grid) SetPos(v int, p r3.Vec) { g.pos[v] = p }

// VertexSlots returns the number of vertex identifier slots, including
// tombstones of erased vertices.
func (g *Grid) VertexSlots() int { return len(g.pos) }

// VertexAlive reports whether vertex v has not been erased.
func (g *Grid) VertexAlive(v int) bool { return v >= 0 && v < len(g.vrtAlive) && g.vrtAlive[v] }

// NumVertices returns the number of live vertices.
func (g *Grid) NumVertices() int { return countAlive(g.vrtAlive) }

func countAlive(alive []bool) int {
	n := 0
	for _, a := range alive {
		if a {
			n++
		}
	}
	return n
}

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

func faceKey(f [4]int) [4]int {
	if f[3] < 0 {
		k := [3]int{f[0], f[1], f[2]}
		sort.Ints(k[:])
		return [4]int{k[0], k[1], k[2], -1}
	}
	k := f
	sort.Ints(k[:])
	return k
}

// AddEdge creates an edge between vertices a and b.
func (g *Grid) AddEdge(a, b int) int {
	g.init()
	id := len(g.edges)
	g.edges = append(g.edges, [2]int{a, b})
	g.edgeAlive = append(g.edgeAlive, true)
	g.edgeSub = append(g.edgeSub, g.defaultSub)
	g.edgeIndex[edgeKey(a, b)] = id
	g.vrtEdges[a] = append(g.vrtEdges[a], id)
	g.vrtEdges[b] = append(g.vrtEdges[b], id)
	return id
}

// Edge returns the two endpoint vertices of edge e.
func (g *Grid) Edge(e int) [2]int { return g.edges[e] }

// EdgeSlots returns the number of edge identifier slots.
func (g *Grid) EdgeSlots() int { return len(g.edges) }

// EdgeAlive reports whether edge e has not been erased.
func (g *Grid) EdgeAlive(e int) bool { return e >= 0 && e < len(g.edgeAlive) && g.edgeAlive[e] }

// NumEdges returns the number of live edges.
func (g *Grid) NumEdges() int { return countAlive(g.edgeAlive) }

// FindEdge returns the edge connecting a and b, if one exists.
func (g *Grid) FindEdge(a, b int) (int, bool) {
	g.init()
	e, ok := g.edgeIndex[edgeKey(a, b)]
	if !ok || !g.edgeAlive[e] {
		return -1, false
	}
	return e, true
}

// EdgesOf returns the live edges incident to vertex v.
func (g *Grid) EdgesOf(v int) []int {
	g.init()
	var out []int
	for _, e := range g.vrtEdges[v] {
		if g.edgeAlive[e] {
			out = append(out, e)
		}
	}
	return out
}

// ConnectedVertices returns the vertices sharing a live edge with v.
func (g *Grid) ConnectedVertices(v int) []int {
	var out []int
	for _, e := range g.EdgesOf(v) {
		ev := g.edges[e]
		if ev[0] == v {
			out = append(out, ev[1])
		} else {
			out = append(out, ev[0])
		}
	}
	return out
}

// AddTriangle creates a triangular face over the given vertices.
func (g *Grid) AddTriangle(a, b, c int) int {
	return g.addFace([4]int{a, b, c, -1})
}

// AddQuad creates a quadrilateral face over the given vertices.
func (g *Grid) AddQuad(a, b, c, d int) int {
	return g.addFace([4]int{a, b, c, d})
}

func (g *Grid) addFace(f [4]int) int {
	g.init()
	id := len(g.faces)
	g.faces = append(g.faces, f)
	g.faceAlive = append(g.faceAlive, true)
	g.faceSub = append(g.faceSub, g.defaultSub)
	g.faceIndex[faceKey(f)] = id
	return id
}

// Face returns the vertex tuple of face f. For triangles the fourth entry
// is negative.
func (g *Grid) Face(f int) [4]int { return g.faces[f] }

// FaceVertices returns the vertices of face f in winding order.
func (g *Grid) FaceVertices(f int) []int {
	fv := g.faces[f]
	if fv[3] < 0 {
		return []int{fv[0], fv[1], fv[2]}
	}
	return []int{fv[0], fv[1], fv[2], fv[3]}
}

// FaceSlots returns the number of face identifier slots.
func (g *Grid) FaceSlots() int { return len(g.faces) }

// FaceAlive reports whether face f has not been erased.
func (g *Grid) FaceAlive(f int) bool { return f >= 0 && f < len(g.faceAlive) && g.faceAlive[f] }

// NumFaces returns the number of live faces.
func (g *Grid) NumFaces() int { return countAlive(g.faceAlive) }

// FindFace returns the face spanning exactly the given vertices, regardless
// of orientation or starting corner.
func (g *Grid) FindFace(vs ...int) (int, bool) {
	g.init()
	var key [4]int
	switch len(vs) {
	case 3:
		key = faceKey([4]int{vs[0], vs[1], vs[2], -1})
	case 4:
		key = faceKey([4]int{vs[0], vs[1], vs[2], vs[3]})
	default:
		return -1, false
	}
	f, ok := g.faceIndex[key]
	if !ok || !g.faceAlive[f] {
		return -1, false
	}
	return f, true
}

// EdgesOfFace returns the live edges along the boundary of face f, in
// winding order. Boundary segments without a matching edge are skipped.
func (g *Grid) EdgesOfFace(f int) []int {
	vs := g.FaceVertices(f)
	n := len(vs)
	var out []int
	for i := 0; i < n; i++ {
		if e, ok := g.FindEdge(vs[i], vs[(i+1)%n]); ok {
			out = append(out, e)
		}
	}
	return out
}

// AddHexahedron creates a hexahedral volume. The first four vertices form
// the bottom face, the last four the top face, with vertex i+4 above
// vertex i. Boundary faces and their edges not yet present in the grid are
// created alongside, in the volume's subset, so the hexahedron is always
// fully interconnected.
func (g *Grid) AddHexahedron(vs [8]int) int {
	g.init()
	id := len(g.vols)
	g.vols = append(g.vols, vs)
	g.volAlive = append(g.volAlive, true)
	g.volSub = append(g.volSub, g.defaultSub)
	for _, fd := range hexFaces(vs) {
		f, ok := g.faceIndex[faceKey(fd)]
		if !ok || !g.faceAlive[f] {
			f = g.addFace(fd)
			g.faceSub[f] = g.volSub[id]
			for k := 0; k < 4; k++ {
				if _, have := g.FindEdge(fd[k], fd[(k+1)%4]); !have {
					e := g.AddEdge(fd[k], fd[(k+1)%4])
					g.edgeSub[e] = g.faceSub[f]
				}
			}
		}
		g.faceVols[f] = append(g.faceVols[f], id)
	}
	return id
}

// Volume returns the vertex tuple of hexahedron v.
func (g *Grid) Volume(v int) [8]int { return g.vols[v] }

// VolumeSlots returns the number of volume identifier slots.
func (g *Grid) VolumeSlots() int { return len(g.vols) }

// VolumeAlive reports whether volume v has not been erased.
func (g *Grid) VolumeAlive(v int) bool { return v >= 0 && v < len(g.volAlive) && g.volAlive[v] }

// NumVolumes returns the number of live volumes.
func (g *Grid) NumVolumes() int { return countAlive(g.volAlive) }

func hexFaces(vs [8]int) [6][4]int {
	return [6][4]int{
		{vs[0], vs[1], vs[2], vs[3]},
		{vs[4], vs[5], vs[6], vs[7]},
		{vs[0], vs[1], vs[5], vs[4]},
		{vs[1], vs[2], vs[6], vs[5]},
		{vs[2], vs[3], vs[7], vs[6]},
		{vs[3], vs[0], vs[4], vs[7]},
	}
}

// FacesOfVolume returns the live faces realized on the boundary of
// hexahedron v.
func (g *Grid) FacesOfVolume(v int) []int {
	g.init()
	var out []int
	for _, fd := range hexFaces(g.vols[v]) {
		if f, ok := g.faceIndex[faceKey(fd)]; ok && g.faceAlive[f] {
			out = append(out, f)
		}
	}
	return out
}

// VolumesOfFace returns the volumes adjacent to face f (at most two).
func (g *Grid) VolumesOfFace(f int) []int {
	g.init()
	var out []int
	for _, v := range g.faceVols[f] {
		if g.volAlive[v] {
			out = append(out, v)
		}
	}
	return out
}

// NeighborVolume returns the volume sharing face f with volume v, if any.
func (g *Grid) NeighborVolume(f, v int) (int, bool) {
	for _, w := range g.VolumesOfFace(f) {
		if w != v {
			return w, true
		}
	}
	return -1, false
}

// EraseEdge removes edge e from the grid.
func (g *Grid) EraseEdge(e int) {
	if !g.EdgeAlive(e) {
		return
	}
	g.edgeAlive[e] = false
	key := edgeKey(g.edges[e][0], g.edges[e][1])
	if g.edgeIndex[key] == e {
		delete(g.edgeIndex, key)
	}
}

// EraseFace removes face f from the grid.
func (g *Grid) EraseFace(f int) {
	if !g.FaceAlive(f) {
		return
	}
	g.faceAlive[f] = false
	key := faceKey(g.faces[f])
	if g.faceIndex[key] == f {
		delete(g.faceIndex, key)
	}
	delete(g.faceVols, f)
}

// EraseVolume removes hexahedron v from the grid.
func (g *Grid) EraseVolume(v int) {
	if !g.VolumeAlive(v) {
		return
	}
	g.volAlive[v] = false
}

// EraseVertex removes vertex v. Elements referencing v are left to the
// caller; use MergeVertices or CollapseEdge for topology-preserving removal.
func (g *Grid) EraseVertex(v int) {
	if !g.VertexAlive(v) {
		return
	}
	g.vrtAlive[v] = false
	delete(g.vrtEdges, v)
}

// Extrude translates the given vertices by dir and connects the copies to
// the originals. Per input edge a new edge between the translated endpoint
// images is created, plus one side quadrilateral when CreateFaces is set;
// the axial edges between an endpoint and its image that the side
// quadrilateral needs are created once, shared with the neighboring side.
// Per input quadrilateral a translated image face is created, plus the
// connecting hexahedron when CreateVolumes is set; the created volumes are
// returned in face order. The returned slices are the translated images of
// the inputs and replace them for iterated extrusion.
func (g *Grid) Extrude(vrts, edges, faces []int, dir r3.Vec, flags ExtrudeFlag) (newVrts, newEdges, newFaces, vols []int) {
	g.init()
	img := make(map[int]int, len(vrts))
	newVrts = make([]int, len(vrts))
	for i, v := range vrts {
		nv := g.AddVertex(r3.Add(g.pos[v], dir))
		g.vrtSub[nv] = g.vrtSub[v]
		img[v] = nv
		newVrts[i] = nv
	}
	newEdges = make([]int, len(edges))
	for i, e := range edges {
		ev := g.edges[e]
		ne := g.AddEdge(img[ev[0]], img[ev[1]])
		g.edgeSub[ne] = g.edgeSub[e]
		newEdges[i] = ne
		if flags&CreateFaces != 0 {
			for _, d := range [2][2]int{{ev[1], img[ev[1]]}, {img[ev[0]], ev[0]}} {
				if _, have := g.FindEdge(d[0], d[1]); !have {
					ae := g.AddEdge(d[0], d[1])
					g.edgeSub[ae] = g.edgeSub[e]
				}
			}
			sf := g.AddQuad(ev[0], ev[1], img[ev[1]], img[ev[0]])
			g.faceSub[sf] = g.edgeSub[e]
		}
	}
	newFaces = make([]int, len(faces))
	for i, f := range faces {
		fv := g.faces[f]
		if fv[3] < 0 {
			nf := g.AddTriangle(img[fv[0]], img[fv[1]], img[fv[2]])
			g.faceSub[nf] = g.faceSub[f]
			newFaces[i] = nf
			continue
		}
		nf := g.AddQuad(img[fv[0]], img[fv[1]], img[fv[2]], img[fv[3]])
		g.faceSub[nf] = g.faceSub[f]
		newFaces[i] = nf
		if flags&CreateVolumes != 0 {
			vol := g.AddHexahedron([8]int{
				fv[0], fv[1], fv[2], fv[3],
				img[fv[0]], img[fv[1]], img[fv[2]], img[fv[3]],
			})
			g.volSub[vol] = g.faceSub[f]
			vols = append(vols, vol)
		}
	}
	return newVrts, newEdges, newFaces, vols
}

// MergeVertices merges all given vertices into the first one and returns
// it. Edges degenerating to a point are erased; quadrilaterals left with
// three distinct corners become triangles, those with fewer are erased.
// The survivor keeps its position; callers typically move it afterwards.
func (g *Grid) MergeVertices(vs []int) int {
	g.init()
	if len(vs) == 0 {
		return -1
	}
	target := vs[0]
	merged := make(map[int]bool, len(vs))
	for _, v := range vs[1:] {
		if v != target {
			merged[v] = true
		}
	}
	if len(merged) == 0 {
		return target
	}
	remap := func(v int) int {
		if merged[v] {
			return target
		}
		return v
	}
	for e := 0; e < len(g.edges); e++ {
		if !g.edgeAlive[e] {
			continue
		}
		ev := g.edges[e]
		a, b := remap(ev[0]), remap(ev[1])
		if a == ev[0] && b == ev[1] {
			continue
		}
		key := edgeKey(ev[0], ev[1])
		if g.edgeIndex[key] == e {
			delete(g.edgeIndex, key)
		}
		if a == b {
			g.edgeAlive[e] = false
			continue
		}
		g.edges[e] = [2]int{a, b}
		g.edgeIndex[edgeKey(a, b)] = e
		g.vrtEdges[a] = append(g.vrtEdges[a], e)
		g.vrtEdges[b] = append(g.vrtEdges[b], e)
	}
	for f := 0; f < len(g.faces); f++ {
		if !g.faceAlive[f] {
			continue
		}
		fv := g.faces[f]
		changed := false
		for i := range fv {
			if fv[i] >= 0 && merged[fv[i]] {
				fv[i] = target
				changed = true
			}
		}
		if !changed {
			continue
		}
		key := faceKey(g.faces[f])
		if g.faceIndex[key] == f {
			delete(g.faceIndex, key)
		}
		distinct := dedupCycle(fv)
		switch len(distinct) {
		case 4:
			g.faces[f] = [4]int{distinct[0], distinct[1], distinct[2], distinct[3]}
		case 3:
			g.faces[f] = [4]int{distinct[0], distinct[1], distinct[2], -1}
		default:
			g.faceAlive[f] = false
			delete(g.faceVols, f)
			continue
		}
		g.faceIndex[faceKey(g.faces[f])] = f
	}
	for v := 0; v < len(g.vols); v++ {
		if !g.volAlive[v] {
			continue
		}
		vv := g.vols[v]
		for i := range vv {
			vv[i] = remap(vv[i])
		}
		g.vols[v] = vv
	}
	for v := range merged {
		g.EraseVertex(v)
	}
	return target
}

// dedupCycle returns the cyclic vertex sequence with immediate repetitions
// removed, treating the tuple as a closed loop. Entries below zero are
// dropped.
func dedupCycle(fv [4]int) []int {
	var vs []int
	for _, v := range fv {
		if v >= 0 {
			vs = append(vs, v)
		}
	}
	var out []int
	for i, v := range vs {
		if len(out) > 0 && out[len(out)-1] == v {
			continue
		}
		if i == len(vs)-1 && len(out) > 0 && out[0] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

// CollapseEdge removes edge e by fusing its endpoints into vertex newVrt,
// which must already exist. Incident edges are reconnected to newVrt and
// exact duplicates arising from the fusion are erased.
func (g *Grid) CollapseEdge(e, newVrt int) {
	if !g.EdgeAlive(e) {
		return
	}
	a, b := g.edges[e][0], g.edges[e][1]
	g.EraseEdge(e)
	for _, old := range [2]int{a, b} {
		if old == newVrt {
			continue
		}
		for _, ie := range g.EdgesOf(old) {
			ev := g.edges[ie]
			var other int
			if ev[0] == old {
				other = ev[1]
			} else {
				other = ev[0]
			}
			key := edgeKey(ev[0], ev[1])
			if g.edgeIndex[key] == ie {
				delete(g.edgeIndex, key)
			}
			if other == newVrt {
				g.edgeAlive[ie] = false
				continue
			}
			if _, dup := g.FindEdge(other, newVrt); dup {
				g.edgeAlive[ie] = false
				continue
			}
			if ev[0] == old {
				g.edges[ie] = [2]int{newVrt, other}
			} else {
				g.edges[ie] = [2]int{other, newVrt}
			}
			g.edgeIndex[edgeKey(newVrt, other)] = ie
			g.vrtEdges[newVrt] = append(g.vrtEdges[newVrt], ie)
		}
		g.EraseVertex(old)
	}
}

// FixVolumeOrientation inverts hexahedra whose vertex ordering encloses
// negative volume, so that all given volumes end up positively oriented.
func (g *Grid) FixVolumeOrientation(vols []int) {
	for _, v := range vols {
		if !g.VolumeAlive(v) {
			continue
		}
		vv := g.vols[v]
		d1 := r3.Sub(g.pos[vv[1]], g.pos[vv[0]])
		d3 := r3.Sub(g.pos[vv[3]], g.pos[vv[0]])
		d4 := r3.Sub(g.pos[vv[4]], g.pos[vv[0]])
		if r3.Dot(d1, r3.Cross(d3, d4)) < 0 {
			g.vols[v] = [8]int{vv[4], vv[5], vv[6], vv[7], vv[0], vv[1], vv[2], vv[3]}
		}
	}
}

// Barycenter returns the arithmetic mean position of the given vertices.
func (g *Grid) Barycenter(vs []int) r3.Vec {
	var c r3.Vec
	if len(vs) == 0 {
		return c
	}
	for _, v := range vs {
		c = r3.Add(c, g.pos[v])
	}
	return r3.Scale(1/float64(len(vs)), c)
}

// Bounds returns the axis-aligned bounding box of all live vertices.
func (g *Grid) Bounds() r3.Box {
	var b r3.Box
	first := true
	for v, alive := range g.vrtAlive {
		if !alive {
			continue
		}
		p := g.pos[v]
		if first {
			b = r3.Box{Min: p, Max: p}
			first = false
			continue
		}
		b.Min = r3.Vec{X: minf(b.Min.X, p.X), Y: minf(b.Min.Y, p.Y), Z: minf(b.Min.Z, p.Z)}
		b.Max = r3.Vec{X: maxf(b.Max.X, p.X), Y: maxf(b.Max.Y, p.Y), Z: maxf(b.Max.Z, p.Z)}
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
