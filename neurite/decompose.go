package neurite

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/nmorph/tubemesh/swc"
)

// Decompose splits the morphology point graph into a forest of unbranched
// neurites. Soma points are separated first by a breadth-first walk over
// each soma cluster; the non-soma points reached from a cluster root the
// neurites attached to it. A depth-first walk then cuts the trees at
// branchings: the child most nearly collinear with the incoming direction
// continues the current neurite, all others start new neurites rooted at
// the branch point.
//
// Every point must be reachable from a soma and each connected component
// may contain one soma cluster only; violations are reported as a
// *swc.FormatError. The returned forest still needs Fit to compute spline
// sections and branching regions.
func Decompose(pts []swc.Point) (*Forest, error) {
	f := &Forest{}

	n := len(pts)
	processed := make([]bool, n)
	nProcessed := 0
	cur := 0

	type link struct{ parent, ind int }

	for nProcessed != n {
		// find an unprocessed soma point to seed the next neuron
		seed := -1
		for i := range pts {
			if pts[i].Kind == swc.Soma && !processed[i] {
				seed = i
				break
			}
		}
		if seed < 0 {
			return nil, &swc.FormatError{Reason: "no soma contained in list of unprocessed points; at least one point is not connected to any soma"}
		}
		f.Soma = append(f.Soma, pts[seed])

		// separate the soma mass and collect the neurite root points
		var rootPts []link
		queue := []link{{parent: -1, ind: seed}}
		for len(queue) > 0 {
			l := queue[0]
			queue = queue[1:]

			pt := &pts[l.ind]
			if pt.Kind != swc.Soma {
				rootPts = append(rootPts, l)
				continue
			}
			if processed[l.ind] {
				return nil, &swc.FormatError{Reason: "cycle detected in morphology point graph"}
			}
			processed[l.ind] = true
			nProcessed++
			for _, c := range pt.Conns {
				if c != l.parent {
					queue = append(queue, link{parent: l.ind, ind: c})
				}
			}
		}

		for range rootPts {
			f.Points = append(f.Points, nil)
			f.Radii = append(f.Radii, nil)
			f.bpInfo = append(f.bpInfo, nil)
		}

		stack := make([]link, len(rootPts))
		copy(stack, rootPts)

		if len(rootPts) > 0 {
			f.Roots = append(f.Roots, cur)
		}

		// maps a branch point's morphology index to the neurite and
		// branch record its departing children must be registered with
		helper := make(map[int][2]int)

		for len(stack) > 0 {
			l := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if processed[l.ind] {
				return nil, &swc.FormatError{Reason: "cycle detected in morphology point graph"}
			}
			processed[l.ind] = true
			nProcessed++

			pt := &pts[l.ind]
			if pt.Kind == swc.Soma {
				return nil, &swc.FormatError{Reason: "detected neuron with more than one soma"}
			}

			f.Points[cur] = append(f.Points[cur], pt.Coords)
			f.Radii[cur] = append(f.Radii[cur], pt.Radius)

			nConn := len(pt.Conns)
			switch {
			case nConn > 2:
				// the most collinear child continues the current neurite
				parentDir := r3.Unit(r3.Sub(pt.Coords, pts[l.parent].Coords))
				parentConn := 0
				minInd := 0
				minAngle := math.Inf(1)
				for i, c := range pt.Conns {
					if c == l.parent {
						parentConn = i
						continue
					}
					dir := r3.Unit(r3.Sub(pts[c].Coords, pt.Coords))
					angle := math.Acos(r3.Dot(dir, parentDir))
					if angle < minAngle {
						minAngle = angle
						minInd = i
					}
				}

				bp := branchInfo{at: len(f.Points[cur]) - 1}

				for i := 0; i < nConn-2; i++ {
					f.Points = append(f.Points, nil)
					f.Radii = append(f.Radii, nil)
					f.bpInfo = append(f.bpInfo, nil)
				}

				for i, c := range pt.Conns {
					if i == parentConn || i == minInd {
						continue
					}
					stack = append(stack, link{parent: l.ind, ind: c})
					helper[l.ind] = [2]int{cur, len(f.bpInfo[cur])}
				}

				stack = append(stack, link{parent: l.ind, ind: pt.Conns[minInd]})
				f.bpInfo[cur] = append(f.bpInfo[cur], bp)

			case nConn == 1:
				// terminal point: the next stack entry starts a new
				// neurite, either at a branch point or at the soma
				if len(stack) == 0 {
					break
				}
				cur++
				nextParent := stack[len(stack)-1].parent
				if at, ok := helper[nextParent]; ok {
					f.Points[cur] = append(f.Points[cur], pts[nextParent].Coords)
					f.Radii[cur] = append(f.Radii[cur], pts[nextParent].Radius)
					bi := &f.bpInfo[at[0]][at[1]]
					bi.children = append(bi.children, cur)
				} else {
					f.Roots = append(f.Roots, cur)
				}

			default:
				for _, c := range pt.Conns {
					if c != l.parent {
						stack = append(stack, link{parent: l.ind, ind: c})
					}
				}
			}
		}

		// the last neurite of each neuron does not advance the counter;
		// a bare soma cluster contributes no neurite at all
		if len(rootPts) > 0 {
			cur++
		}
	}

	return f, nil
}
