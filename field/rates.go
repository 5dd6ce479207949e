package field

// PairRate is one antisymmetric transfer record between regions A and B: a
// positive rate moves occupancy from B into A. Value1 carries the primary
// increments shaped by the normalization clamp; Value2 carries auxiliary
// contributions that are merged alongside but never drive the clamp loop.
type PairRate struct {
	A, B           int
	Value1, Value2 float64
}

// RateNode is the per-cell pairwise increment store. Records live for one
// time step: produced by the driving-force collaborator, reshaped by
// normalization, consumed by merge. Records keep insertion order; pair
// lookup is sign-corrected for the stored orientation.
type RateNode struct {
	Rates []PairRate
}

// locate returns the record position holding the unordered pair {a,b} and
// +1 when it is stored as (a,b), -1 when stored as (b,a). ok is false when
// the pair is absent.
func (rn *RateNode) locate(a, b int) (pos int, sign float64, ok bool) {
	for i := range rn.Rates {
		if rn.Rates[i].A == a && rn.Rates[i].B == b {
			return i, 1, true
		}
		if rn.Rates[i].A == b && rn.Rates[i].B == a {
			return i, -1, true
		}
	}
	return 0, 0, false
}

// Add1 adds v to the Value1 contribution of pair {a,b}, appending a new
// record oriented (a,b) when the pair is absent.
func (rn *RateNode) Add1(a, b int, v float64) {
	if pos, sign, ok := rn.locate(a, b); ok {
		rn.Rates[pos].Value1 += sign * v
		return
	}
	rn.Rates = append(rn.Rates, PairRate{A: a, B: b, Value1: v})
}

// Add2 adds v to the Value2 contribution of pair {a,b}.
func (rn *RateNode) Add2(a, b int, v float64) {
	if pos, sign, ok := rn.locate(a, b); ok {
		rn.Rates[pos].Value2 += sign * v
		return
	}
	rn.Rates = append(rn.Rates, PairRate{A: a, B: b, Value2: v})
}

// Get1 returns the Value1 contribution of pair {a,b} as seen from the (a,b)
// orientation, zero when absent.
func (rn *RateNode) Get1(a, b int) float64 {
	if pos, sign, ok := rn.locate(a, b); ok {
		return sign * rn.Rates[pos].Value1
	}
	return 0
}

// Get2 returns the Value2 contribution of pair {a,b}, zero when absent.
func (rn *RateNode) Get2(a, b int) float64 {
	if pos, sign, ok := rn.locate(a, b); ok {
		return sign * rn.Rates[pos].Value2
	}
	return 0
}

// ZeroPair zeroes both contributions of pair {a,b} if present.
func (rn *RateNode) ZeroPair(a, b int) {
	if pos, _, ok := rn.locate(a, b); ok {
		rn.Rates[pos].Value1 = 0
		rn.Rates[pos].Value2 = 0
	}
}

// Scale multiplies both contributions of every record by f.
func (rn *RateNode) Scale(f float64) {
	for i := range rn.Rates {
		rn.Rates[i].Value1 *= f
		rn.Rates[i].Value2 *= f
	}
}

// Filter keeps only records for which keep returns true, preserving order.
func (rn *RateNode) Filter(keep func(*PairRate) bool) {
	kept := rn.Rates[:0]
	for i := range rn.Rates {
		if keep(&rn.Rates[i]) {
			kept = append(kept, rn.Rates[i])
		}
	}
	rn.Rates = kept
}

// Len returns the number of records.
func (rn *RateNode) Len() int { return len(rn.Rates) }

// Front returns the first record. Only valid when Len() > 0.
func (rn *RateNode) Front() *PairRate { return &rn.Rates[0] }

// Clear drops all records.
func (rn *RateNode) Clear() { rn.Rates = rn.Rates[:0] }

// CopyFrom deep-copies the records of src, reusing capacity.
func (rn *RateNode) CopyFrom(src *RateNode) {
	rn.Rates = append(rn.Rates[:0], src.Rates...)
}
