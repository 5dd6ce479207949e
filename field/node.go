// Package field implements the sparse per-cell phase-field containers: the
// active-set Node, the pairwise RateNode, and the halo-padded storages that
// hold one of each per grid cell.
package field

import (
	"math"
	"sort"
)

const (
	// Eps is the float64 machine epsilon. Finalize prunes entries below it
	// and the normalization cleanup drops increments below it.
	Eps = 0x1p-52
	// Eps32 is the float32 machine epsilon, the tolerance of the
	// plausibility and conservation checks.
	Eps32 = 0x1p-23
)

// Cell flag values. Finalize marks cells with two or more surviving regions,
// the flag-spreading pass marks their direct neighbors.
const (
	FlagBulk      int8 = 0
	FlagNeighbor  int8 = 1
	FlagInterface int8 = 2
)

// Entry is one active region in a cell: the registry index, the occupancy
// value and the cached spatial derivatives of the occupancy field.
type Entry struct {
	Index     int
	Value     float64
	Gradient  [3]float64
	Laplacian float64
}

// Node is the sparse active set of one cell. Entries stay sorted by region
// index so that iteration order is deterministic everywhere. Only regions
// present in the list exist; Value reads of absent indices yield zero.
type Node struct {
	Flag    int8
	Entries []Entry

	// staging area for the double-buffered derivative pass
	tmp []Entry
}

// find returns the position of idx in Entries and whether it is present.
func (n *Node) find(idx int) (int, bool) {
	pos := sort.Search(len(n.Entries), func(i int) bool {
		return n.Entries[i].Index >= idx
	})
	return pos, pos < len(n.Entries) && n.Entries[pos].Index == idx
}

// Value returns the occupancy of region idx, zero when absent.
func (n *Node) Value(idx int) float64 {
	if pos, ok := n.find(idx); ok {
		return n.Entries[pos].Value
	}
	return 0
}

// Contains reports whether region idx has an entry in this cell.
func (n *Node) Contains(idx int) bool {
	_, ok := n.find(idx)
	return ok
}

func (n *Node) insert(pos int, e Entry) {
	n.Entries = append(n.Entries, Entry{})
	copy(n.Entries[pos+1:], n.Entries[pos:])
	n.Entries[pos] = e
}

// SetValue sets the occupancy of region idx, creating the entry if needed.
func (n *Node) SetValue(idx int, v float64) {
	pos, ok := n.find(idx)
	if ok {
		n.Entries[pos].Value = v
		return
	}
	n.insert(pos, Entry{Index: idx, Value: v})
}

// AddValue adds dv to the occupancy of region idx, creating the entry with
// value zero first if it is absent.
func (n *Node) AddValue(idx int, dv float64) {
	pos, ok := n.find(idx)
	if ok {
		n.Entries[pos].Value += dv
		return
	}
	n.insert(pos, Entry{Index: idx, Value: dv})
}

// Len returns the number of active regions.
func (n *Node) Len() int { return len(n.Entries) }

// Sum returns the total occupancy of the cell.
func (n *Node) Sum() float64 {
	s := 0.0
	for i := range n.Entries {
		s += n.Entries[i].Value
	}
	return s
}

// Interface reports whether the cell hosted two or more regions at the last
// finalize.
func (n *Node) Interface() bool { return n.Flag == FlagInterface }

// WideInterface reports whether the cell is an interface cell or a direct
// neighbor of one. Derivative and normalization work is gated on it.
func (n *Node) WideInterface() bool { return n.Flag != FlagBulk }

// Finalize prunes entries whose occupancy magnitude is below machine
// epsilon and reclassifies the cell flag. Values are not clamped or
// renormalized here: the normalization engine guarantees bounds upstream.
func (n *Node) Finalize() {
	kept := n.Entries[:0]
	for i := range n.Entries {
		if math.Abs(n.Entries[i].Value) >= Eps {
			kept = append(kept, n.Entries[i])
		}
	}
	n.Entries = kept
	if len(n.Entries) > 1 {
		n.Flag = FlagInterface
	} else {
		n.Flag = FlagBulk
	}
}

// Clear removes all entries and resets the flag.
func (n *Node) Clear() {
	n.Entries = n.Entries[:0]
	n.Flag = FlagBulk
}

// ScaleValues multiplies every occupancy by f.
func (n *Node) ScaleValues(f float64) {
	for i := range n.Entries {
		n.Entries[i].Value *= f
	}
}

// CopyFrom deep-copies the active set and flag of src, reusing capacity.
// The derivative staging area is not carried over.
func (n *Node) CopyFrom(src *Node) {
	n.Flag = src.Flag
	n.Entries = append(n.Entries[:0], src.Entries...)
}

// BeginDerivatives resets the staging area to the current entries with
// zeroed derivatives. Neighbor reads during the accumulate pass keep seeing
// the live entries untouched.
func (n *Node) BeginDerivatives() {
	n.tmp = append(n.tmp[:0], n.Entries...)
	for i := range n.tmp {
		n.tmp[i].Gradient = [3]float64{}
		n.tmp[i].Laplacian = 0
	}
}

func (n *Node) findTmp(idx int) (int, bool) {
	pos := sort.Search(len(n.tmp), func(i int) bool {
		return n.tmp[i].Index >= idx
	})
	return pos, pos < len(n.tmp) && n.tmp[pos].Index == idx
}

// AddLaplacianTmp accumulates dl into the staged Laplacian of region idx,
// creating a zero-value staged entry when the region only exists in the
// stencil neighborhood.
func (n *Node) AddLaplacianTmp(idx int, dl float64) {
	pos, ok := n.findTmp(idx)
	if !ok {
		n.tmp = append(n.tmp, Entry{})
		copy(n.tmp[pos+1:], n.tmp[pos:])
		n.tmp[pos] = Entry{Index: idx}
	}
	n.tmp[pos].Laplacian += dl
}

// AddGradientTmp accumulates g into the staged gradient of region idx.
func (n *Node) AddGradientTmp(idx int, g [3]float64) {
	pos, ok := n.findTmp(idx)
	if !ok {
		n.tmp = append(n.tmp, Entry{})
		copy(n.tmp[pos+1:], n.tmp[pos:])
		n.tmp[pos] = Entry{Index: idx}
	}
	n.tmp[pos].Gradient[0] += g[0]
	n.tmp[pos].Gradient[1] += g[1]
	n.tmp[pos].Gradient[2] += g[2]
}

// CommitDerivatives replaces the live entries with the staged ones. Runs
// after a pass-wide barrier so no neighbor still reads the old state.
func (n *Node) CommitDerivatives() {
	n.Entries = append(n.Entries[:0], n.tmp...)
}
