// Package swc reads and writes neuron morphologies in the SWC text format
// and provides the preprocessing passes (smoothing, short-edge collapse)
// that clean a digitized skeleton before mesh generation.
//
// An SWC file holds one morphology point per line as 7 whitespace-separated
// fields: index, type code, x, y, z, radius, parent index. Parent -1 marks a
// root. Anything after '#' is a comment.
package swc

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Kind labels a morphology point with its SWC structure type.
type Kind int

const (
	Undefined Kind = iota
	Soma
	Axon
	Dendrite
	Apical
)

// Code returns the SWC integer type code for k.
func (k Kind) Code() int {
	switch k {
	case Soma:
		return 1
	case Axon:
		return 2
	case Dendrite:
		return 3
	case Apical:
		return 4
	}
	return 0
}

func kindFromCode(c int) Kind {
	switch c {
	case 1:
		return Soma
	case 2:
		return Axon
	case 3:
		return Dendrite
	case 4:
		return Apical
	}
	return Undefined
}

func (k Kind) String() string {
	switch k {
	case Soma:
		return "soma"
	case Axon:
		return "axon"
	case Dendrite:
		return "dend"
	case Apical:
		return "apic"
	}
	return "undef"
}

// Point is one morphology point. Conns lists the indices of all connected
// points; parent and children are not distinguished until tree decomposition.
type Point struct {
	Kind   Kind
	Coords r3.Vec
	Radius float64
	Conns  []int
}

// FormatError reports a malformed SWC record or a dangling reference.
// It aborts the whole import.
type FormatError struct {
	Path   string
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("swc %q line %d: %s", e.Path, e.Line, e.Reason)
	case e.Path != "":
		return fmt.Sprintf("swc %q: %s", e.Path, e.Reason)
	case e.Line > 0:
		return fmt.Sprintf("swc line %d: %s", e.Line, e.Reason)
	}
	return "swc: " + e.Reason
}

// ReadFile parses the SWC file at path. Coordinates and radii are multiplied
// by scale.
func ReadFile(path string, scale float64) ([]Point, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return read(fp, path, scale)
}

// Read parses SWC records from r. Coordinates and radii are multiplied by
// scale.
func Read(r io.Reader, scale float64) ([]Point, error) {
	return read(r, "<reader>", scale)
}

func read(r io.Reader, path string, scale float64) ([]Point, error) {
	var pts []Point
	indexMap := make(map[int]int)
	sc := bufio.NewScanner(r)
	lineCnt := 0
	for sc.Scan() {
		lineCnt++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 7 {
			return nil, &FormatError{Path: path, Line: lineCnt,
				Reason: fmt.Sprintf("record has %d values, want 7", len(fields))}
		}

		fileIdx, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, &FormatError{Path: path, Line: lineCnt, Reason: "bad index: " + err.Error()}
		}
		typeCode, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, &FormatError{Path: path, Line: lineCnt, Reason: "bad type code: " + err.Error()}
		}
		var coord [4]float64 // x, y, z, radius
		for i := 0; i < 4; i++ {
			coord[i], err = strconv.ParseFloat(fields[2+i], 64)
			if err != nil {
				return nil, &FormatError{Path: path, Line: lineCnt, Reason: "bad coordinate: " + err.Error()}
			}
		}
		parent, err := strconv.Atoi(fields[6])
		if err != nil {
			return nil, &FormatError{Path: path, Line: lineCnt, Reason: "bad parent index: " + err.Error()}
		}

		cur := len(pts)
		indexMap[fileIdx] = cur
		pts = append(pts, Point{
			Kind:   kindFromCode(typeCode),
			Coords: r3.Scale(scale, r3.Vec{X: coord[0], Y: coord[1], Z: coord[2]}),
			Radius: coord[3] * scale,
		})

		if parent >= 0 {
			pi, ok := indexMap[parent]
			if !ok {
				return nil, &FormatError{Path: path, Line: lineCnt,
					Reason: fmt.Sprintf("refers to unknown parent index %d", parent)}
			}
			pts[cur].Conns = append(pts[cur].Conns, pi)
			pts[pi].Conns = append(pts[pi].Conns, cur)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return pts, nil
}

// WriteFile writes the morphology to path in SWC format.
func WriteFile(path string, pts []Point) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fp.Close()
	return Write(fp, pts)
}

// Write emits the morphology as SWC records, one point per line. The walk
// starts at the soma (found breadth-first from the first point) and proceeds
// depth-first so that every parent precedes its children.
func Write(w io.Writer, pts []Point) error {
	if len(pts) == 0 {
		return nil
	}

	// locate a soma point to start from
	start := 0
	marked := make([]bool, len(pts))
	queue := []int{0}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if marked[v] {
			continue
		}
		marked[v] = true
		if pts[v].Kind == Soma {
			start = v
			break
		}
		queue = append(queue, pts[v].Conns...)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# exported by tubemesh")

	type frame struct {
		vrt  int
		conn int
	}
	stack := []frame{{start, -1}}
	visited := make([]bool, len(pts))
	ind := 0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.vrt] {
			continue
		}
		visited[f.vrt] = true
		p := pts[f.vrt]

		ind++
		fmt.Fprintf(bw, "%d %d %s %s %s %s %d\n", ind, p.Kind.Code(),
			ftoa(p.Coords.X), ftoa(p.Coords.Y), ftoa(p.Coords.Z), ftoa(p.Radius), f.conn)

		for _, c := range p.Conns {
			if !visited[c] {
				stack = append(stack, frame{c, ind})
			}
		}
	}
	return bw.Flush()
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Smooth runs n iterations of tangential-free neighbor averaging over all
// non-soma, non-branching interior points. Each point is pulled toward the
// average of its two neighbors by gamma, weighted by exp(-d²/h²) of the
// adjacent edge lengths, and only the displacement component orthogonal to
// the neighbor chord is applied so points never slide along the skeleton.
// Soma points, branching points and terminals keep their positions.
func Smooth(pts []Point, n int, h, gamma float64) error {
	nP := len(pts)

	// neurite root points: first non-soma points reached from each soma
	var roots []int
	treated := make([]bool, nP)
	for i := 0; i < nP; i++ {
		if treated[i] {
			continue
		}
		treated[i] = true
		if pts[i].Kind != Soma {
			continue
		}
		queue := []int{i}
		for len(queue) > 0 {
			ind := queue[0]
			queue = queue[1:]
			pt := &pts[ind]
			if pt.Kind == Soma {
				for _, c := range pt.Conns {
					if !treated[c] {
						queue = append(queue, c)
					}
				}
			} else {
				roots = append(roots, ind)
			}
			treated[ind] = true
		}
	}

	newPos := make([]r3.Vec, nP)
	for iter := 0; iter < n; iter++ {
		treated = make([]bool, nP)
		stack := append([]int(nil), roots...)
		for len(stack) > 0 {
			ind := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pt := &pts[ind]
			x := pt.Coords

			if treated[ind] {
				return fmt.Errorf("cycle detected in neuron point graph at %v", x)
			}
			treated[ind] = true

			// somata are neither smoothed nor walked through
			if pt.Kind == Soma {
				newPos[ind] = x
				continue
			}

			for _, c := range pt.Conns {
				if !treated[c] {
					stack = append(stack, c)
				}
			}

			// branching points and terminals keep their position
			if len(pt.Conns) != 2 {
				newPos[ind] = x
				continue
			}

			x1 := pts[pt.Conns[0]].Coords
			x2 := pts[pt.Conns[1]].Coords

			d1 := r3.Norm2(r3.Sub(x1, x))
			d2 := r3.Norm2(r3.Sub(x2, x))
			w1 := math.Exp(-d1 / (h * h))
			w2 := math.Exp(-d2 / (h * h))

			// only really smooth if both adjacent edges are short
			w := math.Min(w1, w2)

			corr := r3.Add(r3.Scale(w, x1), r3.Add(r3.Scale(-2*w, x), r3.Scale(w, x2)))
			corr = r3.Scale(1/(1+2*w), corr)

			// keep only the part orthogonal to x1-x2 so the point is not
			// shifted toward the nearer neighbor
			chord := r3.Sub(x1, x2)
			corr = r3.Sub(corr, r3.Scale(r3.Dot(corr, chord)/r3.Norm2(chord), chord))
			newPos[ind] = r3.Add(x, r3.Scale(gamma, corr))
		}

		for p := 0; p < nP; p++ {
			if treated[p] { // soma points may not have been reached
				pts[p].Coords = newPos[p]
			}
		}
	}
	return nil
}
