// Package render writes generated grids out for inspection and
// downstream tools: the boundary surface as binary STL and the full
// volume grid with its compartment subsets as UGX.
package render

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Triangle3 is a 3D triangle.
type Triangle3 = r3.Triangle

// Renderer produces a triangle stream in the manner of io.Reader: each
// call fills t with up to len(t) triangles and reports how many were
// written, returning io.EOF once the stream is exhausted.
type Renderer interface {
	ReadTriangles(t []r3.Triangle) (int, error)
}
