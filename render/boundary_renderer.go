package render

import (
	"errors"
	"io"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nmorph/tubemesh/grid"
)

// boundary streams the boundary faces of a volume grid as triangles. A
// face belongs to the boundary when fewer than two volumes are attached
// to it; quadrilaterals are split along a diagonal.
type boundary struct {
	g         *grid.Grid
	next      int             // next face slot to visit
	unwritten triangle3Buffer // overflow when dst fills mid-face
}

// NewBoundaryRenderer returns a Renderer producing the boundary surface
// of g. Faces with a single attached volume are oriented to point away
// from it; faces without any volume keep their stored orientation.
func NewBoundaryRenderer(g *grid.Grid) Renderer {
	return &boundary{
		g:         g,
		unwritten: triangle3Buffer{buf: make([]Triangle3, 0, 4)},
	}
}

func (b *boundary) ReadTriangles(dst []Triangle3) (n int, err error) {
	if len(dst) == 0 {
		return 0, errors.New("destination buffer must hold at least one triangle")
	}
	if b.unwritten.Len() > 0 {
		n += b.unwritten.Read(dst[n:])
		if n == len(dst) {
			return n, nil
		}
	}
	for b.next < b.g.FaceSlots() {
		f := b.next
		b.next++
		if !b.g.FaceAlive(f) || len(b.g.VolumesOfFace(f)) > 1 {
			continue
		}
		tris := b.faceTriangles(f)
		nt := copy(dst[n:], tris)
		n += nt
		if nt < len(tris) {
			b.unwritten.Write(tris[nt:])
			return n, nil
		}
		if n == len(dst) {
			return n, nil
		}
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (b *boundary) faceTriangles(f int) []Triangle3 {
	g := b.g
	vs := g.FaceVertices(f)
	if vols := g.VolumesOfFace(f); len(vols) == 1 {
		vol := g.Volume(vols[0])
		outward := r3.Sub(g.Barycenter(vs), g.Barycenter(vol[:]))
		normal := (Triangle3{g.Pos(vs[0]), g.Pos(vs[1]), g.Pos(vs[2])}).Normal()
		if r3.Dot(normal, outward) < 0 {
			for i, j := 0, len(vs)-1; i < j; i, j = i+1, j-1 {
				vs[i], vs[j] = vs[j], vs[i]
			}
		}
	}
	tris := []Triangle3{{g.Pos(vs[0]), g.Pos(vs[1]), g.Pos(vs[2])}}
	if len(vs) == 4 {
		tris = append(tris, Triangle3{g.Pos(vs[0]), g.Pos(vs[2]), g.Pos(vs[3])})
	}
	return tris
}
