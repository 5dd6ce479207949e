// Package comms abstracts the cross-domain reductions a distributed run
// needs. Volume sums and registry maxima go through a Reducer so that
// single-process and multi-process execution share one code path; the
// in-process implementation is the identity.
package comms

// Reducer combines values across all participating domains. Slice variants
// reduce element-wise in place. Every operation is commutative and
// associative, so the combined result does not depend on domain order.
type Reducer interface {
	// SumFloat64s replaces each element with the sum over all domains.
	SumFloat64s(v []float64)
	// MaxInt returns the maximum of v over all domains.
	MaxInt(v int) int
	// MaxInts replaces each element with the maximum over all domains.
	MaxInts(v []int)
	// MaxFloat64 returns the maximum of v over all domains.
	MaxFloat64(v float64) float64
	// MaxFloat64s replaces each element with the maximum over all domains.
	MaxFloat64s(v []float64)
}

// Local is the single-process Reducer: every reduction is the identity.
type Local struct{}

// SumFloat64s implements Reducer.
func (Local) SumFloat64s([]float64) {}

// MaxInt implements Reducer.
func (Local) MaxInt(v int) int { return v }

// MaxInts implements Reducer.
func (Local) MaxInts([]int) {}

// MaxFloat64 implements Reducer.
func (Local) MaxFloat64(v float64) float64 { return v }

// MaxFloat64s implements Reducer.
func (Local) MaxFloat64s([]float64) {}
