package neurite

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/spatial/r3"
)

// five-point Gauss-Legendre rule on [0, 1]
var glNodes, glWeights = func() ([]float64, []float64) {
	x := make([]float64, 5)
	w := make([]float64, 5)
	quad.Legendre{}.FixedLocations(x, w, 0, 1)
	return x, w
}()

func checkStartSection(n *Neurite, tStart float64, startSec int) error {
	secTStart := 0.0
	if startSec > 0 {
		secTStart = n.Sections[startSec-1].TEnd
	}
	secTEnd := n.Sections[startSec].TEnd
	if secTEnd < tStart || secTStart > tStart {
		return fmt.Errorf("section %d does not contain start position %g", startSec, tStart)
	}
	return nil
}

// sectionIntegral evaluates the quadrature sum of ‖velocity‖/radius over
// [subStart, subStart+dt] within one section, without the dt factor.
func sectionIntegral(sec *Section, subStart, dt float64) (float64, error) {
	sum := 0.0
	for i := range glNodes {
		t := sec.TEnd - (subStart + dt*glNodes[i])
		vel := r3.Vec{
			X: evalCubicVel(sec.X, t),
			Y: evalCubicVel(sec.Y, t),
			Z: evalCubicVel(sec.Z, t),
		}
		r := evalCubic(sec.R, t)
		v2 := r3.Norm2(vel)
		if r*r <= v2*1e-12 {
			return 0, &NonPhysicalGeometryError{Neurite: -1, T: sec.TEnd - t, Radius: r}
		}
		sum += glWeights[i] * math.Sqrt(v2) / r
	}
	return sum, nil
}

// LengthOverRadius integrates ‖velocity‖/radius over the axial interval
// [tStart, tEnd] of a neurite. The result is the tube length measured in
// units of the local radius, which determines how many segments of
// near-unit aspect ratio the interval supports. startSec must be the index
// of the section containing tStart.
func LengthOverRadius(n *Neurite, tStart, tEnd float64, startSec int) (float64, error) {
	if err := checkStartSection(n, tStart, startSec); err != nil {
		return 0, err
	}
	integral := 0.0
	for si := startSec; si < len(n.Sections); si++ {
		sec := &n.Sections[si]
		subStart := tStart
		if si > 0 && n.Sections[si-1].TEnd > subStart {
			subStart = n.Sections[si-1].TEnd
		}
		subEnd := math.Min(tEnd, sec.TEnd)
		dt := subEnd - subStart
		secInt, err := sectionIntegral(sec, subStart, dt)
		if err != nil {
			return 0, err
		}
		integral += dt * secInt

		tStart = subEnd
		if tStart >= tEnd {
			break
		}
	}
	return integral, nil
}

// SegmentPositions fills segAxPos with the axial positions that divide
// [tStart, tEnd] into len(segAxPos) segments of equal length-over-radius
// segLength. Positions are found by accumulating the quadrature integral
// section by section and inverting it linearly within the sub-interval
// that passes each segment boundary.
func SegmentPositions(n *Neurite, tStart, tEnd float64, startSec int, segLength float64, segAxPos []float64) error {
	nSeg := len(segAxPos)
	if err := checkStartSection(n, tStart, startSec); err != nil {
		return err
	}
	integral := 0.0
	seg := 0
	for si := startSec; si < len(n.Sections); si++ {
		sec := &n.Sections[si]
		subStart := tStart
		if si > 0 && n.Sections[si-1].TEnd > subStart {
			subStart = n.Sections[si-1].TEnd
		}
		subEnd := math.Min(tEnd, sec.TEnd)
		dt := subEnd - subStart
		secInt, err := sectionIntegral(sec, subStart, dt)
		if err != nil {
			return err
		}
		integral += dt * secInt

		for seg < nSeg && integral >= float64(seg+1)*segLength {
			lastIntegral := integral - dt*secInt
			segAxPos[seg] = subStart + (float64(seg+1)*segLength-lastIntegral)/secInt
			seg++
		}

		tStart = subEnd
		if tStart >= tEnd {
			break
		}
	}

	// the last boundary may be missed by rounding alone
	if seg+1 == nSeg && (float64(nSeg)*segLength-integral)/integral < 1e-6 {
		segAxPos[nSeg-1] = tEnd
		seg++
	}
	if seg != nSeg {
		return fmt.Errorf("only %d of %d segment positions could be located", seg, nSeg)
	}
	return nil
}
