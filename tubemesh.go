// Package tubemesh generates simulation ready tube meshes from digitized
// neuron morphologies. It chains the subpackages of this module into one
// pipeline: SWC parsing and preprocessing, neurite decomposition with
// cubic spline fitting, and quadrilateral surface or hexahedral volume
// extrusion with an optional inner layer for the endoplasmic reticulum.
package tubemesh

import (
	"fmt"

	"github.com/nmorph/tubemesh/grid"
	"github.com/nmorph/tubemesh/mesh"
	"github.com/nmorph/tubemesh/neurite"
	"github.com/nmorph/tubemesh/swc"
	"gonum.org/v1/gonum/spatial/r3"
)

// Subset names assigned by Generate. Meshes with an inner layer use all
// four, plain surface meshes collect everything under "neurites".
const (
	SubsetNameCytosol    = "cyt"
	SubsetNameER         = "er"
	SubsetNameMembrane   = "pm"
	SubsetNameERMembrane = "erm"
	SubsetNameNeurites   = "neurites"
)

// Options bundles the tunable parameters of Generate. The zero value
// selects the documented default of every field.
type Options struct {
	// Anisotropy is the axial-to-circumferential edge length ratio the
	// ring spacing of the generated tubes aims for. Zero selects the
	// default 2.
	Anisotropy float64

	// Scale multiplies all morphology coordinates and radii before
	// meshing, converting reconstructions digitized in other units to
	// the unit of the simulation. Zero selects the default 1.
	Scale float64

	// WithER nests an inner endoplasmic reticulum layer inside every
	// tube, producing hexahedral cytosol and ER compartments instead of
	// a single quadrilateral surface.
	WithER bool

	// ERScale is the radius of the inner layer as a fraction of the
	// surface radius. Zero selects the default 0.5. Meaningful only
	// together with WithER.
	ERScale float64

	// Smooth is the number of neighbor averaging passes applied to the
	// morphology before meshing.
	Smooth int

	// Collapse removes morphology edges shorter than the local tube
	// diameter before meshing, guarding the extrusion against
	// oversampled reconstructions.
	Collapse bool
}

func (o Options) scale() float64 {
	if o.Scale == 0 {
		return 1
	}
	return o.Scale
}

func (o Options) erScale() float64 {
	if o.ERScale == 0 {
		return 0.5
	}
	return o.ERScale
}

func (o Options) validate() error {
	switch {
	case o.Anisotropy < 0:
		return fmt.Errorf("anisotropy %g is negative", o.Anisotropy)
	case o.Scale < 0:
		return fmt.Errorf("scale %g is negative", o.Scale)
	case o.ERScale < 0 || o.ERScale >= 1:
		return fmt.Errorf("ER scale %g outside [0, 1)", o.ERScale)
	case o.Smooth < 0:
		return fmt.Errorf("smoothing pass count %d is negative", o.Smooth)
	}
	return nil
}

// Result is the output of a Generate run.
type Result struct {
	// Grid holds the generated mesh with named subsets.
	Grid *grid.Grid

	// Params holds the surface parameters of every grid vertex, indexed
	// by vertex slot.
	Params []mesh.SurfaceParam

	// Forest is the decomposed and spline fitted morphology the mesh
	// was extruded from.
	Forest *neurite.Forest
}

// Generate runs the whole meshing pipeline on a morphology point set:
// optional scaling, smoothing and short edge collapsing, decomposition
// into a neurite forest, spline fitting, and tube extrusion from every
// root neurite. The input slice is not modified.
func Generate(pts []swc.Point, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if s := opts.scale(); s != 1 || opts.Smooth > 0 {
		pts = append([]swc.Point(nil), pts...)
		if s != 1 {
			for i := range pts {
				pts[i].Coords = r3.Scale(s, pts[i].Coords)
				pts[i].Radius *= s
			}
		}
	}
	if opts.Smooth > 0 {
		if err := swc.Smooth(pts, opts.Smooth, 1, 1); err != nil {
			return nil, err
		}
	}
	if opts.Collapse {
		g, diam := swc.ToGrid(pts, 1)
		diam = swc.CollapseShortEdges(g, diam)
		pts = swc.FromGrid(g, diam)
	}

	forest, err := neurite.Decompose(pts)
	if err != nil {
		return nil, err
	}
	if err := forest.Fit(); err != nil {
		return nil, err
	}

	b := mesh.NewBuilder(forest)
	b.Anisotropy = opts.Anisotropy
	b.ERScale = opts.ERScale
	if opts.WithER {
		for i := range forest.Neurites {
			forest.Neurites[i].Scale = opts.erScale()
			forest.Neurites[i].HasER = true
		}
	}
	for _, root := range forest.Roots {
		if opts.WithER {
			err = b.BuildNeuriteER(root)
		} else {
			err = b.BuildNeurite(root)
		}
		if err != nil {
			return nil, err
		}
	}

	b.Grid.AssignSubsetColors()
	if opts.WithER {
		b.Grid.SetSubsetName(mesh.SubsetCytosol, SubsetNameCytosol)
		b.Grid.SetSubsetName(mesh.SubsetER, SubsetNameER)
		b.Grid.SetSubsetName(mesh.SubsetMembrane, SubsetNameMembrane)
		b.Grid.SetSubsetName(mesh.SubsetERMembrane, SubsetNameERMembrane)
	} else {
		b.Grid.SetSubsetName(b.Grid.DefaultSubset(), SubsetNameNeurites)
	}
	return &Result{Grid: b.Grid, Params: b.Params(), Forest: forest}, nil
}

// GenerateFile reads the SWC morphology at path and runs Generate on it.
func GenerateFile(path string, opts Options) (*Result, error) {
	pts, err := swc.ReadFile(path, 1)
	if err != nil {
		return nil, err
	}
	return Generate(pts, opts)
}
