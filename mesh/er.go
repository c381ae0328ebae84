package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nmorph/tubemesh/grid"
	"github.com/nmorph/tubemesh/internal/d3"
	"github.com/nmorph/tubemesh/neurite"
)

// Subset indices of the four compartments meshed by BuildNeuriteER.
const (
	SubsetCytosol    = 0
	SubsetER         = 1
	SubsetMembrane   = 2
	SubsetERMembrane = 3
)

// The ER cross section is a ring of sixteen vertices: four on an inner
// square scaled down by the ER scale factor, twelve on the outer circle.
// Each inner vertex connects by a spoke to the two outer vertices
// flanking its sector, cutting the annulus into eight cytosol quads
// around the central lumen quad.
//
// erRingEdges lists the 24 edge descriptors of such a ring in slot
// order: inner square, spokes, outer circle.
func erRingEdges(vs []int) [24][2]int {
	var ed [24][2]int
	for i := 0; i < 4; i++ {
		ed[i] = [2]int{vs[i], vs[(i+1)%4]}
		ed[i+4] = [2]int{vs[i], vs[5+3*i]}
		ed[i+8] = [2]int{vs[(i+1)%4], vs[6+3*i]}
	}
	for i := 0; i < 12; i++ {
		ed[i+12] = [2]int{vs[i+4], vs[(i+1)%12+4]}
	}
	return ed
}

// erRingFaces lists the 9 face descriptors of an ER ring: the lumen
// quad first, then the eight cytosol sectors.
func erRingFaces(vs []int) [9][4]int {
	var fd [9][4]int
	fd[0] = [4]int{vs[0], vs[1], vs[2], vs[3]}
	for i := 0; i < 4; i++ {
		fd[i+1] = [4]int{vs[i], vs[(3*i+11)%12+4], vs[3*i+4], vs[3*i+5]}
		fd[i+5] = [4]int{vs[i], vs[3*i+5], vs[3*i+6], vs[(i+1)%4]}
	}
	return fd
}

// placeERRing positions a full sixteen-vertex ring around center with
// the given rotation and resets its surface parameters.
func (b *Builder) placeERRing(vrts []int, nid int, center r3.Vec, axial, radius, erScale, angleOffset float64, projRefDir, thirdDir r3.Vec) {
	g := b.Grid
	for j := 0; j < 4; j++ {
		angle := 0.5*math.Pi*float64(j) + angleOffset
		if angle > 2*math.Pi {
			angle -= 2 * math.Pi
		}
		v := vrts[j]
		g.SetPos(v, r3.Add(center, ringVec(erScale*radius, angle, projRefDir, thirdDir)))
		b.setParam(v, SurfaceParam{NeuriteID: uint32(nid), Axial: axial, Angular: angle, Radial: erScale})
	}
	for j := 0; j < 12; j++ {
		angle := math.Pi*float64(j)/6 + angleOffset
		if angle > 2*math.Pi {
			angle -= 2 * math.Pi
		}
		v := vrts[j+4]
		g.SetPos(v, r3.Add(center, ringVec(radius, angle, projRefDir, thirdDir)))
		b.setParam(v, SurfaceParam{NeuriteID: uint32(nid), Axial: axial, Angular: angle, Radial: 1})
	}
}

// shiftBranchWindow tilts a ring into the oblique plane of the child
// branching off at side c: the window half advances along the axis, the
// opposite half draws back, the flanking vertices by interpolated
// fractions.
func (b *Builder) shiftBranchWindow(vrts []int, c int, offset, erScale, length float64, vel r3.Vec) {
	g := b.Grid
	shift := func(v int, fac float64) {
		g.SetPos(v, r3.Add(g.Pos(v), r3.Scale(fac*offset, vel)))
		b.param(v).Axial += fac * offset / length
	}
	shift(vrts[c], erScale)
	shift(vrts[(c+1)%4], erScale)
	shift(vrts[(c+2)%4], -erScale)
	shift(vrts[(c+3)%4], -erScale)

	shift(vrts[4+3*c], 1)
	shift(vrts[4+3*((c+1)%4)], 1)
	shift(vrts[4+3*((c+2)%4)], -1)
	shift(vrts[4+3*((c+3)%4)], -1)

	shift(vrts[5+3*c], 1.366)
	shift(vrts[6+3*c], 1.366)
	shift(vrts[5+3*((c+2)%4)], -1.366)
	shift(vrts[6+3*((c+2)%4)], -1.366)

	shift(vrts[5+3*((c+1)%4)], 0.366)
	shift(vrts[6+3*((c+1)%4)], -0.366)
	shift(vrts[5+3*((c+3)%4)], -0.366)
	shift(vrts[6+3*((c+3)%4)], 0.366)
}

// tagBranchRing marks the vertices of one ring that border the branch
// window at side c with the child lineage. The two seam rings in the
// middle of the window additionally tag their lumen corners and hand
// their lateral vertices over to the child's ER outright.
func (b *Builder) tagBranchRing(vrts []int, c int, lineage uint32, childNid int, seam bool) {
	if seam {
		b.param(vrts[c]).NeuriteID += lineage
		b.param(vrts[(c+1)%4]).NeuriteID += lineage
	}
	b.param(vrts[4+3*c]).NeuriteID += lineage
	b.param(vrts[4+3*((c+1)%4)]).NeuriteID += lineage
	if seam {
		b.param(vrts[5+3*c]).NeuriteID = uint32(childNid)
		b.param(vrts[6+3*c]).NeuriteID = uint32(childNid)
	} else {
		b.param(vrts[5+3*c]).NeuriteID += lineage
		b.param(vrts[6+3*c]).NeuriteID += lineage
	}
}

// BuildNeuriteER meshes neurite nid and its branches with an inner
// endoplasmic reticulum layer. Volumes, faces, edges and vertices are
// assigned to the compartment subsets: cytosol, ER lumen, plasma
// membrane and ER membrane. Unlike BuildNeurite the tube ends in an
// open ring.
func (b *Builder) BuildNeuriteER(nid int) error {
	return b.buildTubeER(nid, nil, 0)
}

func (b *Builder) buildTubeER(nid int, conn *ring, initialOffset float64) error {
	n := &b.Forest.Neurites[nid]
	pos := b.Forest.Points[nid]
	r := b.Forest.Radii[nid]
	g := b.Grid
	er := b.erScale()

	neuriteLength := b.Forest.Length(nid)

	// ring frame at the neurite start
	vel := r3.Unit(n.Sections[0].Velocity(0))
	projRefDir, thirdDir := frame(n.RefDir, vel)

	angleOffset := 0.0
	tStart, tEnd := 0.0, 0.0

	brIt, brEnd := 0, len(n.Regions)

	var cur ring
	if conn != nil {
		cur = *conn

		// recover the ring rotation from the inner quad
		center := g.Barycenter(cur.vrts[:4])
		centerToFirst := d3.Reject(r3.Sub(g.Pos(cur.vrts[0]), center), vel)
		angleOffset = ringAngle(centerToFirst, projRefDir, thirdDir)
		if angleOffset < 0 {
			angleOffset += 2 * math.Pi
		}

		// the first branching region is the one connecting to the parent
		brIt++

		// keep the first segment from being shorter than the rest
		tEnd = initialOffset / neuriteLength
		for i := 0; i < 4; i++ {
			angle := 0.5*math.Pi*float64(i) + angleOffset
			if angle >= 2*math.Pi {
				angle -= 2 * math.Pi
			}
			p := b.param(cur.vrts[i])
			p.Axial = tEnd
			p.Angular = angle
			p.Radial = er
		}
	} else {
		cur = ring{vrts: make([]int, 16), edges: make([]int, 24), faces: make([]int, 9)}
		for i := 0; i < 4; i++ {
			angle := 0.5 * math.Pi * float64(i)
			v := g.AddVertex(r3.Add(pos[0], ringVec(er*r[0], angle, projRefDir, thirdDir)))
			cur.vrts[i] = v
			b.setParam(v, SurfaceParam{NeuriteID: uint32(nid), Angular: angle, Radial: er})
			g.SetVertexSubset(v, SubsetERMembrane)
		}
		for i := 0; i < 12; i++ {
			angle := math.Pi * float64(i) / 6
			v := g.AddVertex(r3.Add(pos[0], ringVec(r[0], angle, projRefDir, thirdDir)))
			cur.vrts[i+4] = v
			b.setParam(v, SurfaceParam{NeuriteID: uint32(nid), Angular: angle, Radial: 1})
			g.SetVertexSubset(v, SubsetMembrane)
		}
		for i, d := range erRingEdges(cur.vrts) {
			cur.edges[i] = g.AddEdge(d[0], d[1])
		}
		for i := 0; i < 4; i++ {
			g.SetEdgeSubset(cur.edges[i], SubsetERMembrane)
		}
		for i := 12; i < 24; i++ {
			g.SetEdgeSubset(cur.edges[i], SubsetMembrane)
		}
		for i, d := range erRingFaces(cur.vrts) {
			cur.faces[i] = g.AddQuad(d[0], d[1], d[2], d[3])
		}
		g.SetFaceSubset(cur.faces[0], SubsetER)
	}

	// Sweep ring by ring as in the plain tube; extruded elements carry
	// their compartment subsets along.
	lastPos := pos[0]
	curSec := 0

	for {
		tStart = tEnd

		bpStart, bpEnd := 1.0, 0.0
		var surfBPoffset, ringOffset float64

		if brIt == brEnd {
			tEnd = 1.0
		} else {
			// the window is centered on the branching point here; the
			// oblique-cut shift tilts the rings instead
			reg := &n.Regions[brIt]
			bp := &b.Forest.BranchPoints[reg.BP]
			for _, child := range bp.Neurites[1:] {
				geo, err := b.Forest.BranchGeometryAt(nid, reg.T, child, curSec)
				if err != nil {
					return err
				}
				surfBPoffset = geo.SurfaceOffset
				ringOffset = geo.RingOffset
				bpStart = math.Min(bpStart, reg.T-geo.HalfLength/neuriteLength)
				bpEnd = math.Max(bpEnd, reg.T+geo.HalfLength/neuriteLength)
			}
			tEnd = bpStart
		}

		lengthOverRadius, err := neurite.LengthOverRadius(n, tStart, tEnd, curSec)
		if err != nil {
			return tagNeurite(err, nid)
		}
		nSeg := int(math.Floor(lengthOverRadius / (b.anisotropy() * 0.5 * math.Pi)))
		if nSeg < 1 {
			nSeg = 1
		}
		segLength := lengthOverRadius / float64(nSeg)
		segAx := make([]float64, nSeg)
		if err := neurite.SegmentPositions(n, tStart, tEnd, curSec, segLength, segAx); err != nil {
			return tagNeurite(err, nid)
		}
		if brIt != brEnd {
			segAx = append(segAx, bpEnd)
			nSeg++
		}

		addOffset := 0.0
		childNid := 0
		connFaceInd := 0
		if brIt != brEnd {
			childNid, connFaceInd, addOffset, err = b.branchTarget(nid, brIt, nSeg, curSec, segAx, angleOffset)
			if err != nil {
				return err
			}
		}

		for s := 0; s < nSeg; s++ {
			segPos := segAx[s]
			curSec = sectionAt(n, curSec, segPos)
			sec := &n.Sections[curSec]
			curPos := sec.Position(segPos)
			vel = r3.Unit(sec.Velocity(segPos))
			radius := sec.Radius(segPos)
			projRefDir, thirdDir = frame(n.RefDir, vel)

			if s != nSeg-1 || brIt == brEnd {
				// usual segment: extrude the full ring
				angleOffset = math.Mod(angleOffset+addOffset+2*math.Pi, 2*math.Pi)

				var vols []int
				cur.vrts, cur.edges, cur.faces, vols = g.Extrude(cur.vrts, cur.edges, cur.faces,
					r3.Sub(curPos, lastPos), grid.CreateFaces|grid.CreateVolumes)
				b.placeERRing(cur.vrts, nid, curPos, segPos, radius, er, angleOffset, projRefDir, thirdDir)
				g.FixVolumeOrientation(vols)
			} else {
				// branching segment: three thin extrusions bracket the
				// window so the child's ER can pass between the middle
				// two rings
				c := connFaceInd
				lineage := uint32(brIt)<<20 + 1<<28
				bpVols := make([]int, 0, 27)

				b.shiftBranchWindow(cur.vrts, c, surfBPoffset, er, neuriteLength, vel)
				b.tagBranchRing(cur.vrts, c, lineage, childNid, false)

				branchVrts := make([]int, 16)
				branchVrts[4] = cur.vrts[4+3*((c+1)%4)]
				branchVrts[13] = cur.vrts[4+3*c]
				branchVrts[14] = cur.vrts[5+3*c]
				branchVrts[15] = cur.vrts[6+3*c]

				// first third
				firstAx := 0.5*(1+er)*segAx[s-1] + 0.5*(1-er)*segAx[s]
				firstPos := r3.Add(r3.Scale(0.5*(1+er), lastPos), r3.Scale(0.5*(1-er), curPos))
				var vols []int
				cur.vrts, cur.edges, cur.faces, vols = g.Extrude(cur.vrts, cur.edges, cur.faces,
					r3.Sub(firstPos, lastPos), grid.CreateFaces|grid.CreateVolumes)
				bpVols = append(bpVols, vols...)
				b.placeERRing(cur.vrts, nid, firstPos, firstAx, radius, er, angleOffset, projRefDir, thirdDir)
				b.shiftBranchWindow(cur.vrts, c, surfBPoffset, er, neuriteLength, vel)
				g.FixVolumeOrientation(vols)
				b.tagBranchRing(cur.vrts, c, lineage, childNid, true)
				branchVrts[0] = cur.vrts[6+3*c]
				branchVrts[3] = cur.vrts[5+3*c]
				branchVrts[5] = cur.vrts[4+3*((c+1)%4)]
				branchVrts[12] = cur.vrts[4+3*c]

				// second third
				secondAx := 0.5*(1-er)*segAx[s-1] + 0.5*(1+er)*segAx[s]
				secondPos := r3.Add(r3.Scale(0.5*(1-er), lastPos), r3.Scale(0.5*(1+er), curPos))
				cur.vrts, cur.edges, cur.faces, vols = g.Extrude(cur.vrts, cur.edges, cur.faces,
					r3.Sub(secondPos, firstPos), grid.CreateFaces|grid.CreateVolumes)
				bpVols = append(bpVols, vols...)
				b.placeERRing(cur.vrts, nid, secondPos, secondAx, radius, er, angleOffset, projRefDir, thirdDir)
				b.shiftBranchWindow(cur.vrts, c, surfBPoffset, er, neuriteLength, vel)
				g.FixVolumeOrientation(vols)
				b.tagBranchRing(cur.vrts, c, lineage, childNid, true)
				branchVrts[1] = cur.vrts[6+3*c]
				branchVrts[2] = cur.vrts[5+3*c]
				branchVrts[6] = cur.vrts[4+3*((c+1)%4)]
				branchVrts[11] = cur.vrts[4+3*c]

				// remainder of the window
				cur.vrts, cur.edges, cur.faces, vols = g.Extrude(cur.vrts, cur.edges, cur.faces,
					r3.Sub(curPos, secondPos), grid.CreateFaces|grid.CreateVolumes)
				bpVols = append(bpVols, vols...)
				b.placeERRing(cur.vrts, nid, curPos, segPos, radius, er, angleOffset, projRefDir, thirdDir)
				b.shiftBranchWindow(cur.vrts, c, surfBPoffset, er, neuriteLength, vel)
				g.FixVolumeOrientation(vols)
				b.tagBranchRing(cur.vrts, c, lineage, childNid, false)
				branchVrts[7] = cur.vrts[4+3*((c+1)%4)]
				branchVrts[8] = cur.vrts[6+3*c]
				branchVrts[9] = cur.vrts[5+3*c]
				branchVrts[10] = cur.vrts[4+3*c]

				// the child's connecting ring already exists on the
				// window mantle; collect its faces and edges
				branchFaces := make([]int, 9)
				for j, d := range erRingFaces(branchVrts) {
					f, ok := g.FindFace(d[0], d[1], d[2], d[3])
					if !ok {
						return fmt.Errorf("connecting face %d of branch into neurite %d not found", j, childNid)
					}
					branchFaces[j] = f
				}
				branchEdges := make([]int, 24)
				for j, d := range erRingEdges(branchVrts) {
					e, ok := g.FindEdge(d[0], d[1])
					if !ok {
						return fmt.Errorf("connecting edge %d of branch into neurite %d not found", j, childNid)
					}
					branchEdges[j] = e
				}

				// route the child's ER through the window: the cytosol
				// volume behind the opened face joins the lumen and its
				// exposed sides become ER membrane
				connVol := bpVols[c+14]
				g.SetVolumeSubset(connVol, SubsetER)
				for _, f := range g.FacesOfVolume(connVol) {
					opp, ok := g.NeighborVolume(f, connVol)
					if !ok || g.VolumeSubset(opp) == SubsetER {
						g.SetFaceSubset(f, SubsetER)
					} else {
						g.SetFaceSubset(f, SubsetERMembrane)
						for _, e := range g.EdgesOfFace(f) {
							g.SetEdgeSubset(e, SubsetERMembrane)
							ev := g.Edge(e)
							g.SetVertexSubset(ev[0], SubsetERMembrane)
							g.SetVertexSubset(ev[1], SubsetERMembrane)
						}
					}
				}
				for j := 1; j < 9; j++ {
					g.SetFaceSubset(branchFaces[j], SubsetCytosol)
				}
				for j := 4; j < 12; j++ {
					g.SetEdgeSubset(branchEdges[j], SubsetCytosol)
				}

				br := ring{vrts: branchVrts, edges: branchEdges, faces: branchFaces}
				if err := b.buildTubeER(childNid, &br, ringOffset); err != nil {
					return err
				}
			}

			lastPos = curPos
		}

		if brIt != brEnd {
			tEnd = bpEnd
		}
		curSec = sectionAt(n, curSec, tEnd)

		if brIt == brEnd {
			break
		}
		brIt++
	}

	return nil
}
