package driving

import (
	"gonum.org/v1/gonum/mat"
)

// DefaultLimit is the driving-force limiter fraction per phase pair: the
// largest force, relative to the interface stabilizing force, the limiter
// lets through undamped.
const DefaultLimit = 0.95

// Properties holds the phase-pair interface parameters. All matrices are
// symmetric and indexed by thermodynamic phase.
type Properties struct {
	Phases int

	// Sigma is the interface energy, Mobility the interface mobility of
	// each phase pair.
	Sigma    *mat.SymDense
	Mobility *mat.SymDense

	// Limit caps the driving force at this fraction of the interface
	// stabilizing force. Zero entries are invalid.
	Limit *mat.SymDense

	// RegularizationFactor scales the limiter threshold globally.
	RegularizationFactor float64
}

// NewProperties allocates the matrices for n phases with the limiter at its
// default and no energy or mobility set.
func NewProperties(n int) *Properties {
	p := &Properties{
		Phases:               n,
		Sigma:                mat.NewSymDense(n, nil),
		Mobility:             mat.NewSymDense(n, nil),
		Limit:                mat.NewSymDense(n, nil),
		RegularizationFactor: 1.0,
	}
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			p.Limit.SetSym(a, b, DefaultLimit)
		}
	}
	return p
}

// SetPair sets the interface energy and mobility of the unordered phase
// pair {a,b}.
func (p *Properties) SetPair(a, b int, sigma, mobility float64) {
	p.Sigma.SetSym(a, b, sigma)
	p.Mobility.SetSym(a, b, mobility)
}

// StabilityTimeStep returns the largest time step the stiffest phase pair
// tolerates under the Neumann criterion dt < dx^2/(2*dim*sigma*mu).
func (p *Properties) StabilityTimeStep(dx float64, dimensions int) float64 {
	maxRate := 0.0
	for a := 0; a < p.Phases; a++ {
		for b := a; b < p.Phases; b++ {
			if rate := p.Sigma.At(a, b) * p.Mobility.At(a, b); rate > maxRate {
				maxRate = rate
			}
		}
	}
	if maxRate == 0.0 {
		return 0.0
	}
	return dx * dx / (2.0 * float64(dimensions) * maxRate)
}
