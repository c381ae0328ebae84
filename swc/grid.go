package swc

import (
	"container/heap"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nmorph/tubemesh/grid"
)

// ToGrid builds a one-dimensional morphology grid from pts. Vertex i
// corresponds to point i; one edge per connection pair, assigned to the
// subset of its lower-indexed endpoint. Subsets are indexed by SWC type
// code minus one and named accordingly; unused ones are erased. The
// returned slice holds per-vertex tube diameters, 2*radius*scale.
func ToGrid(pts []Point, scale float64) (*grid.Grid, []float64) {
	g := grid.New()
	diam := make([]float64, len(pts))
	for i := range pts {
		pt := &pts[i]
		v := g.AddVertex(r3.Scale(scale, pt.Coords))
		g.SetVertexSubset(v, pt.Kind.Code()-1)
		diam[i] = 2 * pt.Radius * scale
		for _, c := range pt.Conns {
			if c < i {
				e := g.AddEdge(c, v)
				g.SetEdgeSubset(e, pts[c].Kind.Code()-1)
			}
		}
	}
	g.AssignSubsetColors()
	g.SetSubsetName(0, "soma")
	g.SetSubsetName(1, "axon")
	g.SetSubsetName(2, "dend")
	g.SetSubsetName(3, "apic")
	g.EraseEmptySubsets()
	return g, diam
}

// FromGrid reads a morphology back out of a one-dimensional grid. Point
// kinds are recovered from subset names: a name containing "soma", "axon",
// "apic" or "dend" (case-insensitive, checked in that order) selects the
// kind, anything else maps to Undefined. diam must hold per-vertex
// diameters as produced by ToGrid and maintained by CollapseShortEdges.
func FromGrid(g *grid.Grid, diam []float64) []Point {
	kinds := make([]Kind, g.NumSubsets())
	for si := range kinds {
		kinds[si] = kindFromSubsetName(g.SubsetName(si))
	}

	idx := make([]int, g.VertexSlots())
	var pts []Point
	for v := 0; v < g.VertexSlots(); v++ {
		if !g.VertexAlive(v) {
			idx[v] = -1
			continue
		}
		idx[v] = len(pts)
		k := Undefined
		if si := g.VertexSubset(v); si >= 0 && si < len(kinds) {
			k = kinds[si]
		}
		pts = append(pts, Point{Kind: k, Coords: g.Pos(v), Radius: 0.5 * diam[v]})
	}
	for e := 0; e < g.EdgeSlots(); e++ {
		if !g.EdgeAlive(e) {
			continue
		}
		ev := g.Edge(e)
		a, b := idx[ev[0]], idx[ev[1]]
		pts[a].Conns = append(pts[a].Conns, b)
		pts[b].Conns = append(pts[b].Conns, a)
	}
	return pts
}

func kindFromSubsetName(name string) Kind {
	n := strings.ToUpper(name)
	switch {
	case strings.Contains(n, "SOMA"):
		return Soma
	case strings.Contains(n, "AXON"):
		return Axon
	case strings.Contains(n, "APIC"):
		return Apical
	case strings.Contains(n, "DEND"):
		return Dendrite
	}
	return Undefined
}

type edgeLen struct {
	e   int
	len float64
}

// edgeHeap orders collapse candidates by squared length, shortest first.
type edgeHeap []edgeLen

func (h edgeHeap) Len() int            { return len(h) }
func (h edgeHeap) Less(i, j int) bool  { return h[i].len < h[j].len }
func (h edgeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *edgeHeap) Push(x interface{}) { *h = append(*h, x.(edgeLen)) }
func (h *edgeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// CollapseShortEdges removes morphology edges shorter than the larger tube
// diameter at their endpoints, shortest first. Branching points and
// terminals keep their position and diameter; an interior collapse places
// the merged vertex by weighting each endpoint with how sharply the tube
// bends there, or at the midpoint when both adjacent edges are nearly
// collinear. Edges joining two branching points are never collapsed.
//
// The grid is modified in place. The returned slice replaces diam, grown
// by one entry per merged vertex.
func CollapseShortEdges(g *grid.Grid, diam []float64) []float64 {
	lengthSq := func(e int) float64 {
		ev := g.Edge(e)
		return r3.Norm2(r3.Sub(g.Pos(ev[1]), g.Pos(ev[0])))
	}
	maxDiamSq := func(e int) float64 {
		ev := g.Edge(e)
		d := math.Max(diam[ev[0]], diam[ev[1]])
		return d * d
	}

	h := &edgeHeap{}
	for e := 0; e < g.EdgeSlots(); e++ {
		if !g.EdgeAlive(e) {
			continue
		}
		if l := lengthSq(e); l < maxDiamSq(e) {
			*h = append(*h, edgeLen{e, l})
		}
	}
	heap.Init(h)

	for h.Len() > 0 {
		el := heap.Pop(h).(edgeLen)
		if !g.EdgeAlive(el.e) {
			continue
		}

		// a collapse nearby may have moved an endpoint; re-queue the
		// entry with its current length if it still qualifies
		curLen := lengthSq(el.e)
		if curLen != el.len {
			if curLen < maxDiamSq(el.e) {
				heap.Push(h, edgeLen{el.e, curLen})
			}
			continue
		}

		ev := g.Edge(el.e)
		v1, v2 := ev[0], ev[1]
		nAss1 := len(g.EdgesOf(v1))
		nAss2 := len(g.EdgesOf(v2))
		if nAss1 > 2 && nAss2 > 2 {
			continue
		}

		x1, x2 := g.Pos(v1), g.Pos(v2)
		var newPos r3.Vec
		var newDiam float64
		switch {
		case nAss1 > 2: // never move a branching point
			newPos, newDiam = x1, diam[v1]
		case nAss2 > 2:
			newPos, newDiam = x2, diam[v2]
		case nAss1 == 1: // nor a terminal
			newPos, newDiam = x1, diam[v1]
		case nAss2 == 1:
			newPos, newDiam = x2, diam[v2]
		default:
			d0 := r3.Unit(r3.Sub(x2, x1))
			d1 := r3.Unit(r3.Sub(x1, g.Pos(otherNeighbor(g, v1, el.e))))
			d2 := r3.Unit(r3.Sub(g.Pos(otherNeighbor(g, v2, el.e)), x2))
			w1 := 1 - math.Abs(r3.Dot(d0, d1))
			w2 := 1 - math.Abs(r3.Dot(d0, d2))
			if w1 < 0.05 && w2 < 0.05 {
				// all three edges within about 18 degrees
				newPos = r3.Scale(0.5, r3.Add(x1, x2))
				newDiam = 0.5 * (diam[v1] + diam[v2])
			} else {
				newPos = r3.Scale(1/(w1+w2), r3.Add(r3.Scale(w1, x1), r3.Scale(w2, x2)))
				newDiam = (w1*diam[v1] + w2*diam[v2]) / (w1 + w2)
			}
		}

		si := g.EdgeSubset(el.e)
		nv := g.AddVertex(newPos)
		g.SetVertexSubset(nv, si)
		g.CollapseEdge(el.e, nv)
		for len(diam) < g.VertexSlots() {
			diam = append(diam, 0)
		}
		diam[nv] = newDiam
	}
	return diam
}

// otherNeighbor returns the vertex across the one edge at v that is not
// notEdge; v must have exactly two incident edges.
func otherNeighbor(g *grid.Grid, v, notEdge int) int {
	for _, e := range g.EdgesOf(v) {
		if e == notEdge {
			continue
		}
		ev := g.Edge(e)
		if ev[0] == v {
			return ev[1]
		}
		return ev[0]
	}
	return v
}
