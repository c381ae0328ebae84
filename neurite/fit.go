package neurite

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Fit computes spline sections, reference directions and branching regions
// for every neurite of a decomposed forest. Each neurite is parameterized
// by normalized cumulative chord length and fitted with natural cubic
// splines through positions and radii using the moment method: one linear
// system per coordinate, solved by inverting the shared moment matrix.
//
// Parents are fitted before their children, so a child's first branching
// region (its connection to the parent, at t = 0) is in place before the
// child's own regions are appended.
func (f *Forest) Fit() error {
	f.Neurites = make([]Neurite, len(f.Points))
	f.BranchPoints = f.BranchPoints[:0]
	for n := range f.Points {
		if err := f.fitNeurite(n); err != nil {
			return err
		}
	}
	return nil
}

func (f *Forest) fitNeurite(n int) error {
	pos := f.Points[n]
	rad := f.Radii[n]
	out := &f.Neurites[n]

	nVrt := len(pos)
	if nVrt < 2 {
		return &DegenerateGeometryError{Neurite: n, Reason: "fewer than two support points"}
	}

	// parameterize by chord length for near-constant parametric velocity
	tSupp := make([]float64, nVrt)
	dt := make([]float64, nVrt)
	total := 0.0
	for i := 0; i < nVrt-1; i++ {
		tSupp[i] = total
		total += r3.Norm(r3.Sub(pos[i+1], pos[i]))
	}
	if total == 0 {
		return &DegenerateGeometryError{Neurite: n, Reason: "zero total length"}
	}
	for i := 0; i < nVrt-1; i++ {
		tSupp[i] /= total
	}
	tSupp[nVrt-1] = 1.0
	for i := 0; i < nVrt-1; i++ {
		dt[i+1] = tSupp[i+1] - tSupp[i]
		if dt[i+1] == 0 {
			return &DegenerateGeometryError{Neurite: n, Reason: "duplicate consecutive support points"}
		}
	}

	m := mat.NewDense(nVrt, nVrt, nil)
	for i := 0; i < nVrt; i++ {
		m.Set(i, i, 2)
	}
	for i := 1; i < nVrt-1; i++ {
		h2 := tSupp[i+1] - tSupp[i-1]
		m.Set(i, i+1, dt[i+1]/h2)
		m.Set(i, i-1, dt[i]/h2)
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return &DegenerateGeometryError{Neurite: n, Reason: "singular moment matrix"}
	}

	moments := func(val func(int) float64) []float64 {
		rhs := mat.NewVecDense(nVrt, nil)
		for i := 1; i < nVrt-1; i++ {
			h2 := tSupp[i+1] - tSupp[i-1]
			rhs.SetVec(i, 6/h2*((val(i+1)-val(i))/dt[i+1]-(val(i)-val(i-1))/dt[i]))
		}
		var x mat.VecDense
		x.MulVec(&inv, rhs)
		mom := make([]float64, nVrt)
		for i := range mom {
			mom[i] = x.AtVec(i)
		}
		return mom
	}
	mx := moments(func(i int) float64 { return pos[i].X })
	my := moments(func(i int) float64 { return pos[i].Y })
	mz := moments(func(i int) float64 { return pos[i].Z })
	mr := moments(func(i int) float64 { return rad[i] })

	// axis-aligned reference direction most orthogonal to the neurite
	nd := r3.Unit(r3.Sub(pos[nVrt-1], pos[0]))
	ax, ay, az := math.Abs(nd.X), math.Abs(nd.Y), math.Abs(nd.Z)
	if ax < ay {
		if ax < az {
			out.RefDir = r3.Vec{X: 1}
		} else {
			out.RefDir = r3.Vec{Z: 1}
		}
	} else {
		if ay < az {
			out.RefDir = r3.Vec{Y: 1}
		} else {
			out.RefDir = r3.Vec{Z: 1}
		}
	}

	var bpInfo []branchInfo
	if n < len(f.bpInfo) {
		bpInfo = f.bpInfo[n]
	}
	brInd := len(out.Regions) // 0 for roots, 1 for children
	out.Regions = append(out.Regions, make([]BranchingRegion, len(bpInfo))...)
	brIt := 0

	out.Sections = make([]Section, 0, nVrt-1)
	for i := 0; i < nVrt-1; i++ {
		sec := Section{TEnd: tSupp[i+1]}
		coef := func(dst *[4]float64, mom []float64, p0, p1 float64) {
			dst[0] = (mom[i] - mom[i+1]) / (6 * dt[i+1])
			dst[1] = 0.5 * mom[i+1]
			dst[2] = -(dt[i+1]/6*(mom[i]+2*mom[i+1]) + (p1-p0)/dt[i+1])
			dst[3] = p1
		}
		coef(&sec.X, mx, pos[i].X, pos[i+1].X)
		coef(&sec.Y, my, pos[i].Y, pos[i+1].Y)
		coef(&sec.Z, mz, pos[i].Z, pos[i+1].Z)
		coef(&sec.R, mr, rad[i], rad[i+1])

		if brIt < len(bpInfo) && bpInfo[brIt].at == i+1 {
			// create the shared branching point and wire both sides
			bpIdx := len(f.BranchPoints)
			f.BranchPoints = append(f.BranchPoints, BranchingPoint{
				Neurites: []int{n},
				Regions:  []int{brInd},
			})
			out.Regions[brInd] = BranchingRegion{T: tSupp[i+1], BP: bpIdx}
			bp := &f.BranchPoints[bpIdx]
			for _, child := range bpInfo[brIt].children {
				f.Neurites[child].Regions = append(f.Neurites[child].Regions, BranchingRegion{T: 0, BP: bpIdx})
				bp.Neurites = append(bp.Neurites, child)
				bp.Regions = append(bp.Regions, 0)
			}
			brInd++
			brIt++
		}

		out.Sections = append(out.Sections, sec)
	}
	return nil
}
