// Package membrane provides pointwise flux evaluators for transport
// mechanisms sitting on the plasma membrane or the ER membrane of a
// generated grid. A simulation stage queries a Transporter for the
// fluxes its mechanism drives between unknowns and for their partial
// derivatives.
package membrane

// Ignore marks an absent side of a flux pairing.
const Ignore = -1

// Deriv is one partial derivative of a flux with respect to the unknown
// at Index.
type Deriv struct {
	Index int
	Value float64
}

// Transporter evaluates the fluxes of one membrane mechanism at a
// single point of the membrane surface. Implementations fix the
// ordering of the unknown slice u they consume.
type Transporter interface {
	// Name identifies the mechanism.
	Name() string
	// NumFluxes returns the number of independent fluxes the mechanism
	// drives.
	NumFluxes() int
	// FluxFromTo names the unknown the i-th flux draws from and the one
	// it feeds. Either side may be Ignore.
	FluxFromTo(i int) (from, to int)
	// Flux evaluates all fluxes for the unknowns u into flux, which
	// holds NumFluxes values.
	Flux(u, flux []float64)
	// FluxDerivs appends the partial derivatives of the i-th flux to
	// derivs[i][:0] for every flux.
	FluxDerivs(u []float64, derivs [][]Deriv)
}
