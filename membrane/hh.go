package membrane

import "math"

// Unknown ordering consumed by the Hodgkin-Huxley channel.
const (
	PhiI   = iota // inner potential, V
	PhiO          // outer potential, V
	StateN        // potassium activation gate
	StateM        // sodium activation gate
	StateH        // sodium inactivation gate
)

// HH is the Hodgkin-Huxley sodium/potassium channel pair of the plasma
// membrane. Potentials are in V, conductances in C/(Vs) and the single
// flux is the outward current in C/s.
type HH struct {
	GK  float64 // potassium conductance
	GNa float64 // sodium conductance
	EK  float64 // potassium reversal potential
	ENa float64 // sodium reversal potential
	// RefTime rescales the gating dynamics to the time unit of the
	// surrounding simulation.
	RefTime float64
	// GatingExplicitCurrent reports zero current derivatives with
	// respect to the gating unknowns, for schemes advancing the gates
	// outside the implicit solve.
	GatingExplicitCurrent bool
}

var _ Transporter = (*HH)(nil) // Compile time check of interface implementation.

// NewHH returns the channel with its default parameterization.
func NewHH() *HH {
	return &HH{
		GK:      2e-11,
		GNa:     2e-11,
		EK:      -0.077,
		ENa:     0.05,
		RefTime: 1,
	}
}

func (c *HH) Name() string { return "Hodgkin-Huxley" }

func (c *HH) NumFluxes() int { return 1 }

// FluxFromTo reports that the current moves charge from the inner to
// the outer potential.
func (c *HH) FluxFromTo(i int) (from, to int) { return PhiI, PhiO }

// Flux evaluates the sum of the potassium and sodium currents.
func (c *HH) Flux(u, flux []float64) {
	vm := u[PhiI] - u[PhiO]
	n := u[StateN]
	m := u[StateM]
	h := u[StateH]
	flux[0] = c.GK*n*n*n*n*(vm-c.EK) + c.GNa*m*m*m*h*(vm-c.ENa)
}

// FluxDerivs evaluates the current derivatives with respect to the five
// unknowns.
func (c *HH) FluxDerivs(u []float64, derivs [][]Deriv) {
	vm := u[PhiI] - u[PhiO]
	n := u[StateN]
	m := u[StateM]
	h := u[StateH]
	gK := c.GK * n * n * n * n
	gNa := c.GNa * m * m * m * h
	d := append(derivs[0][:0],
		Deriv{PhiI, gK + gNa},
		Deriv{PhiO, -gK - gNa},
	)
	if c.GatingExplicitCurrent {
		d = append(d, Deriv{StateN, 0}, Deriv{StateM, 0}, Deriv{StateH, 0})
	} else {
		d = append(d,
			Deriv{StateN, c.GK * 4 * n * n * n * (vm - c.EK)},
			Deriv{StateM, c.GNa * 3 * m * m * h * (vm - c.ENa)},
			Deriv{StateH, c.GNa * m * m * m * (vm - c.ENa)},
		)
	}
	derivs[0] = d
}

// Gates returns the channel's three gates with the dynamics scaled by
// the reference time.
func (c *HH) Gates() (n, m, h Gate) {
	n, m, h = SIGates()
	n.scale = c.RefTime
	m.scale = c.RefTime
	h.scale = c.RefTime
	return n, m, h
}

// Gate describes first order voltage dependent gating dynamics through
// an opening rate Alpha and a closing rate Beta.
type Gate struct {
	Alpha func(vm float64) float64
	Beta  func(vm float64) float64

	scale float64 // rate scaling, 0 means 1
}

// Steady returns the gate state approached at a held potential vm.
func (g Gate) Steady(vm float64) float64 {
	a, b := g.Alpha(vm), g.Beta(vm)
	return a / (a + b)
}

// Tau returns the time constant of the approach at potential vm.
func (g Gate) Tau(vm float64) float64 {
	tau := 1 / (g.Alpha(vm) + g.Beta(vm))
	if g.scale != 0 {
		tau /= g.scale
	}
	return tau
}

// Rate returns the time derivative of gate state x at potential vm.
func (g Gate) Rate(x, vm float64) float64 {
	return (g.Steady(vm) - x) / g.Tau(vm)
}

// Step advances gate state x at a potential held at vm for dt. The
// first order dynamics make this step exact for any dt.
func (g Gate) Step(x, vm, dt float64) float64 {
	inf := g.Steady(vm)
	return inf - (inf-x)*math.Exp(-dt/g.Tau(vm))
}

// SIGates returns the n, m and h gates with potentials in V and rates
// in 1/s.
func SIGates() (n, m, h Gate) {
	n = Gate{Alpha: alphaN, Beta: betaN}
	m = Gate{Alpha: alphaM, Beta: betaM}
	h = Gate{Alpha: alphaH, Beta: betaH}
	return n, m, h
}

// ClassicalGates returns the gates in the units of the original 1952
// publication, potentials in mV and rates in 1/ms. Potentials are
// absolute, the resting potential sits at -65 mV.
func ClassicalGates() (n, m, h Gate) {
	n = Gate{Alpha: alphaNClassic, Beta: betaNClassic}
	m = Gate{Alpha: alphaMClassic, Beta: betaMClassic}
	h = Gate{Alpha: alphaHClassic, Beta: betaHClassic}
	return n, m, h
}

func alphaN(u float64) float64 {
	x := -(u + 0.055)
	if math.Abs(x) > 1e-10 {
		return 1e4 * x / (math.Exp(100*x) - 1)
	}
	return 1e4 * (0.01 - 0.5*x)
}

func betaN(u float64) float64 {
	return 125 * math.Exp(-(u+0.065)/0.08)
}

func alphaM(u float64) float64 {
	x := -(u + 0.04)
	if math.Abs(x) > 1e-10 {
		return 1e5 * x / (math.Exp(100*x) - 1)
	}
	return 1e5 * (0.01 - 0.5*x)
}

func betaM(u float64) float64 {
	return 4e3 * math.Exp(-(u+0.065)/0.018)
}

func alphaH(u float64) float64 {
	return 70 * math.Exp(-(u+0.065)/0.02)
}

func betaH(u float64) float64 {
	return 1e3 / (math.Exp(-(u+0.035)/0.01) + 1)
}

func alphaNClassic(vm float64) float64 {
	x := 10 - (vm + 65)
	if math.Abs(x) > 1e-7 {
		return 0.01 * x / (math.Exp(x/10) - 1)
	}
	return 0.1 - 0.005*x
}

func betaNClassic(vm float64) float64 {
	return 0.125 * math.Exp(-(vm+65)/80)
}

func alphaMClassic(vm float64) float64 {
	x := 25 - (vm + 65)
	if math.Abs(x) > 1e-7 {
		return 0.1 * x / (math.Exp(x/10) - 1)
	}
	return 1 - 0.05*x
}

func betaMClassic(vm float64) float64 {
	return 4 * math.Exp(-(vm+65)/18)
}

func alphaHClassic(vm float64) float64 {
	return 0.07 * math.Exp(-(vm+65)/20)
}

func betaHClassic(vm float64) float64 {
	return 1 / (math.Exp((30-(vm+65))/10) + 1)
}
