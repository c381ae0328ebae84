package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nmorph/tubemesh/grid"
	"github.com/nmorph/tubemesh/internal/d3"
	"github.com/nmorph/tubemesh/neurite"
)

// BuildNeurite meshes neurite nid and, recursively, every neurite
// branching off it. Rings of four surface vertices are extruded along
// the spline and connected by hexahedra; the final ring is closed into
// a tip vertex.
func (b *Builder) BuildNeurite(nid int) error {
	return b.buildTube(nid, nil, 0)
}

func (b *Builder) buildTube(nid int, conn *ring, initialOffset float64) error {
	n := &b.Forest.Neurites[nid]
	pos := b.Forest.Points[nid]
	r := b.Forest.Radii[nid]
	g := b.Grid

	neuriteLength := b.Forest.Length(nid)
	nSec := len(n.Sections)

	// ring frame at the neurite start
	vel := r3.Unit(n.Sections[0].Velocity(0))
	projRefDir, thirdDir := frame(n.RefDir, vel)

	angleOffset := 0.0
	tStart, tEnd := 0.0, 0.0

	brIt, brEnd := 0, len(n.Regions)

	var cur ring
	if conn != nil {
		cur = *conn

		// recover the rotation of the connecting ring so that angular
		// parameters stay continuous across the branch
		center := g.Barycenter(cur.vrts)
		centerToFirst := d3.Reject(r3.Sub(g.Pos(cur.vrts[0]), center), vel)
		angleOffset = ringAngle(centerToFirst, projRefDir, thirdDir)
		if angleOffset < 0 {
			angleOffset += 2 * math.Pi
		}

		// the first branching region is the one connecting to the parent
		brIt++

		// keep the first segment from being shorter than the rest
		tEnd = initialOffset / neuriteLength
	} else {
		cur = ring{vrts: make([]int, 4), edges: make([]int, 4), faces: make([]int, 1)}
		for i := 0; i < 4; i++ {
			angle := 0.5 * math.Pi * float64(i)
			v := g.AddVertex(r3.Add(pos[0], ringVec(r[0], angle, projRefDir, thirdDir)))
			cur.vrts[i] = v
			b.setParam(v, SurfaceParam{NeuriteID: uint32(nid), Angular: angle, Radial: 1})
		}
		for i := 0; i < 4; i++ {
			cur.edges[i] = g.AddEdge(cur.vrts[i], cur.vrts[(i+1)%4])
		}
		cur.faces[0] = g.AddQuad(cur.vrts[0], cur.vrts[1], cur.vrts[2], cur.vrts[3])
	}

	// Sweep ring by ring up to the next branching point, open the wall
	// there, recurse into the child, and continue behind it. The segment
	// count per sweep targets the configured anisotropy.
	lastPos := pos[0]
	curSec := 0

	for {
		tStart = tEnd

		bpStart, bpEnd := 1.0, 0.0
		var surfBPoffset, ringOffset float64

		if brIt == brEnd {
			// no branching point ahead: build to the tip
			tEnd = 1.0
		} else {
			// the branching window is widened and shifted by the oblique
			// cut of the child tube through the parent wall
			reg := &n.Regions[brIt]
			bp := &b.Forest.BranchPoints[reg.BP]
			for _, child := range bp.Neurites[1:] {
				geo, err := b.Forest.BranchGeometryAt(nid, reg.T, child, curSec)
				if err != nil {
					return err
				}
				surfBPoffset = geo.SurfaceOffset
				ringOffset = geo.RingOffset
				bpStart = math.Min(bpStart, reg.T+(geo.SurfaceOffset-geo.HalfLength)/neuriteLength)
				bpEnd = math.Max(bpEnd, reg.T+(geo.SurfaceOffset+geo.HalfLength)/neuriteLength)
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
				// usual segment: extrude and bend the ring onto the spline
				angleOffset = math.Mod(angleOffset+addOffset+2*math.Pi, 2*math.Pi)

				var vols []int
				cur.vrts, cur.edges, cur.faces, vols = g.Extrude(cur.vrts, cur.edges, cur.faces,
					r3.Sub(curPos, lastPos), grid.CreateFaces|grid.CreateVolumes)

				for j := 0; j < 4; j++ {
					angle := 0.5*math.Pi*float64(j) + angleOffset
					if angle > 2*math.Pi {
						angle -= 2 * math.Pi
					}
					v := cur.vrts[j]
					g.SetPos(v, r3.Add(curPos, ringVec(radius, angle, projRefDir, thirdDir)))
					b.setParam(v, SurfaceParam{NeuriteID: uint32(nid), Axial: segPos, Angular: angle, Radial: 1})
				}
				g.FixVolumeOrientation(vols)
			} else {
				// branching segment: build the far ring by hand, open the
				// side face towards the child and recurse
				c := connFaceInd
				newVrts := make([]int, 4)
				for j := 0; j < 4; j++ {
					angle := 0.5*math.Pi*float64(j) + angleOffset
					if angle > 2*math.Pi {
						angle -= 2 * math.Pi
					}
					v := g.AddVertex(r3.Add(curPos, ringVec(radius, angle, projRefDir, thirdDir)))
					newVrts[j] = v
					b.setParam(v, SurfaceParam{NeuriteID: uint32(nid), Axial: segPos, Angular: angle, Radial: 1})
				}

				// vertices opposite the branch window draw back along the
				// axis to mirror the oblique cut
				for _, v := range [4]int{cur.vrts[(c+2)%4], cur.vrts[(c+3)%4], newVrts[(c+2)%4], newVrts[(c+3)%4]} {
					g.SetPos(v, r3.Add(g.Pos(v), r3.Scale(-2*surfBPoffset, vel)))
					b.param(v).Axial -= 2 * surfBPoffset / neuriteLength
				}

				branchVrts := []int{cur.vrts[(c+1)%4], newVrts[(c+1)%4], newVrts[c], cur.vrts[c]}
				branchEdges := make([]int, 4)
				for j := 0; j < 4; j++ {
					if j != 3 {
						branchEdges[j] = g.AddEdge(branchVrts[j], branchVrts[(j+1)%4])
					} else {
						branchEdges[j] = cur.edges[c]
					}
				}
				branchFaces := []int{g.AddQuad(branchVrts[0], branchVrts[1], branchVrts[2], branchVrts[3])}

				lineage := uint32(brIt)<<20 + 1<<28
				for _, v := range branchVrts {
					b.param(v).NeuriteID += lineage
				}

				br := ring{vrts: branchVrts, edges: branchEdges, faces: branchFaces}
				if err := b.buildTube(childNid, &br, ringOffset); err != nil {
					return err
				}

				// rebuild the own ring behind the branch; the window side
				// shares its edge with the child's seam
				for j := 0; j < 4; j++ {
					if j != c {
						cur.edges[j] = g.AddEdge(newVrts[j], newVrts[(j+1)%4])
					} else {
						cur.edges[j] = branchEdges[1]
					}
				}
				cur.faces[0] = g.AddQuad(newVrts[0], newVrts[1], newVrts[2], newVrts[3])

				g.AddHexahedron([8]int{
					cur.vrts[0], cur.vrts[1], cur.vrts[2], cur.vrts[3],
					newVrts[0], newVrts[1], newVrts[2], newVrts[3],
				})

				cur.vrts = newVrts
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

	// close the tip: extrude one more ring along the end tangent and
	// collapse it into a single vertex
	if len(cur.vrts) == 0 {
		panic("bug: tip closure on an empty ring")
	}
	lastSec := &n.Sections[nSec-1]
	tipDir := r3.Vec{X: -lastSec.X[2], Y: -lastSec.Y[2], Z: -lastSec.Z[2]}
	radius := lastSec.R[3]
	tipDir = r3.Scale(radius/r3.Norm(tipDir), tipDir)
	cur.vrts, cur.edges, _, _ = g.Extrude(cur.vrts, cur.edges, nil, tipDir, grid.CreateFaces)
	center := g.Barycenter(cur.vrts)
	tip := g.MergeVertices(cur.vrts)
	g.SetPos(tip, center)
	b.setParam(tip, SurfaceParam{NeuriteID: uint32(nid), Axial: 2, Radial: 1})

	return nil
}
