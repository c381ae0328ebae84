// Package mesh extrudes tube meshes along the fitted neurites of a
// forest: quadrilateral surface rings swept front to back and connected
// by hexahedral volumes, with axial spacing chosen to meet a target
// anisotropy.
//
// At a branching point the parent wall opens along one of its four side
// faces and the child neurite attaches there recursively, so the grid
// stays watertight across branches. BuildNeuriteER meshes an additional
// inner layer scaled down from the surface, separating cytosol, ER
// lumen and the two membranes into subsets.
//
// Every vertex carries a SurfaceParam locating it in the parametric
// space of its neurite, which is what downstream refinement needs to
// project new vertices back onto the spline surface.
package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nmorph/tubemesh/grid"
	"github.com/nmorph/tubemesh/internal/d3"
	"github.com/nmorph/tubemesh/neurite"
)

// SurfaceParam pins a vertex to the parametric space of its neurite:
// axial position along the spline, angle on the cross-section ring and
// radial distance from the axis as a fraction of the local radius.
// NeuriteID holds the neurite index in its low 20 bits; vertices on the
// initial ring of a child neurite additionally carry the parent's
// branching region index (bits 20-27) and a branch marker (bit 28).
type SurfaceParam struct {
	NeuriteID uint32
	Axial     float64
	Angular   float64
	Radial    float64
}

// Neurite returns the neurite index without lineage bits.
func (p SurfaceParam) Neurite() int { return int(p.NeuriteID & 0xfffff) }

// BranchRegion returns the parent branching region index encoded for
// vertices on a branch seam. Meaningful only when OnBranch reports true.
func (p SurfaceParam) BranchRegion() int { return int(p.NeuriteID >> 20 & 0xff) }

// OnBranch reports whether the vertex sits on the seam between a parent
// neurite and a branching child.
func (p SurfaceParam) OnBranch() bool { return p.NeuriteID&(1<<28) != 0 }

// Builder appends tube meshes for the neurites of a forest to a grid.
// Zero values of Anisotropy and ERScale select the defaults 2 and 0.5.
type Builder struct {
	Forest *neurite.Forest
	Grid   *grid.Grid

	// Anisotropy is the axial-to-circumferential edge length ratio the
	// ring spacing aims for. Higher values mean fewer, longer segments.
	Anisotropy float64

	// ERScale is the radius of the inner layer built by BuildNeuriteER
	// as a fraction of the surface radius.
	ERScale float64

	params []SurfaceParam
}

// NewBuilder returns a Builder with default settings writing into a
// fresh grid.
func NewBuilder(f *neurite.Forest) *Builder {
	return &Builder{Forest: f, Grid: grid.New()}
}

func (b *Builder) anisotropy() float64 {
	if b.Anisotropy > 0 {
		return b.Anisotropy
	}
	return 2
}

func (b *Builder) erScale() float64 {
	if b.ERScale > 0 {
		return b.ERScale
	}
	return 0.5
}

// Param returns the surface parameters of vertex v, or the zero value
// for vertices that never received any.
func (b *Builder) Param(v int) SurfaceParam {
	if v < 0 || v >= len(b.params) {
		return SurfaceParam{}
	}
	return b.params[v]
}

// Params returns the surface parameters of all vertices, indexed by
// vertex slot. The slice is owned by the builder.
func (b *Builder) Params() []SurfaceParam { return b.params }

func (b *Builder) param(v int) *SurfaceParam {
	if v >= len(b.params) {
		grown := make([]SurfaceParam, v+1)
		copy(grown, b.params)
		b.params = grown
	}
	return &b.params[v]
}

func (b *Builder) setParam(v int, p SurfaceParam) { *b.param(v) = p }

// tagNeurite fills the neurite index into resampling errors raised
// below the level that knows it.
func tagNeurite(err error, nid int) error {
	if npErr, ok := err.(*neurite.NonPhysicalGeometryError); ok && npErr.Neurite < 0 {
		npErr.Neurite = nid
	}
	return err
}

// ring is the open cross-section boundary carried along an extrusion:
// vertex, edge and face indices in ring order.
type ring struct {
	vrts  []int
	edges []int
	faces []int
}

// frame completes the tangent vel to a right-handed orthonormal frame
// whose first leg is the reference direction projected into the normal
// plane of vel.
func frame(refDir, vel r3.Vec) (projRefDir, thirdDir r3.Vec) {
	projRefDir = r3.Unit(d3.Reject(refDir, vel))
	thirdDir = r3.Cross(vel, projRefDir)
	return projRefDir, thirdDir
}

// ringAngle returns the angle of dir around the ring frame, measured
// from projRefDir towards thirdDir. The result lies in (-pi/2, 3pi/2];
// callers that need [0, 2pi) wrap negative values themselves.
func ringAngle(dir, projRefDir, thirdDir r3.Vec) float64 {
	p := r2.Unit(r2.Vec{X: r3.Dot(dir, projRefDir), Y: r3.Dot(dir, thirdDir)})
	if math.Abs(p.X) < 1e-8 {
		if p.Y < 0 {
			return 1.5 * math.Pi
		}
		return 0.5 * math.Pi
	}
	if p.X < 0 {
		return math.Pi - math.Atan(-p.Y/p.X)
	}
	return math.Atan(p.Y / p.X)
}

// ringVec is the radial offset vector at the given ring angle.
func ringVec(radius, angle float64, projRefDir, thirdDir r3.Vec) r3.Vec {
	return r3.Add(
		r3.Scale(radius*math.Cos(angle), projRefDir),
		r3.Scale(radius*math.Sin(angle), thirdDir),
	)
}

// sectionAt walks the section index forward to the one containing t,
// clamped to the last section for positions past the spline end.
func sectionAt(n *neurite.Neurite, from int, t float64) int {
	i := n.SectionFor(from, t)
	if i == len(n.Sections) {
		i--
	}
	return i
}

// branchTarget resolves the single child neurite departing at region
// brIt and determines where its window must land on the ring: the index
// of the side face to open and the per-segment angle increment that
// rotates the ring there over the nSeg segments of the sweep.
func (b *Builder) branchTarget(nid, brIt, nSeg, curSec int, segAx []float64, angleOffset float64) (childNid, connFaceInd int, addOffset float64, err error) {
	n := &b.Forest.Neurites[nid]
	bp := &b.Forest.BranchPoints[n.Regions[brIt].BP]
	if len(bp.Neurites) > 2 {
		return 0, 0, 0, fmt.Errorf("branching point on neurite %d has %d children, only one is supported", nid, len(bp.Neurites)-1)
	}
	childNid = bp.Neurites[0]
	if childNid == nid {
		childNid = bp.Neurites[1]
	}
	childDir := b.Forest.Neurites[childNid].Sections[0].Velocity(0)

	// ring frame at the last ring before the branching point
	bpAxPos := segAx[nSeg-1]
	sec := &n.Sections[sectionAt(n, curSec, bpAxPos)]
	vel := r3.Unit(sec.Velocity(bpAxPos))
	projRefDir, thirdDir := frame(n.RefDir, vel)

	branchAngle := ringAngle(childDir, projRefDir, thirdDir)
	addOffset = branchAngle - angleOffset
	connFaceInd = int(math.Floor(math.Mod(addOffset+4*math.Pi, 2*math.Pi) / (math.Pi / 2)))
	addOffset = math.Mod(addOffset-(float64(connFaceInd)*math.Pi/2+math.Pi/4)+4*math.Pi, 2*math.Pi)
	if addOffset > math.Pi {
		addOffset -= 2 * math.Pi
	}
	addOffset /= float64(nSeg - 1)
	return childNid, connFaceInd, addOffset, nil
}
