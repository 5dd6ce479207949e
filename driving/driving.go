// Package driving produces the pairwise increment rates the phase-field
// kernel integrates: a curvature-driven force per region pair, optionally
// smoothed by averaging over the interface neighborhood, limited against
// interface distortion and converted into occupancy rates through the
// pair mobility.
package driving

import (
	"fmt"

	"github.com/fennwald/polyphase/field"
	"github.com/fennwald/polyphase/grid"
)

// PairForce is one region pair's driving-force state at a cell. Raw holds
// the freshly produced force, Tmp the collect-pass intermediate, Average
// the distributed result and Weight the interface weight sqrt(psiA*psiB).
type PairForce struct {
	A, B                      int
	Raw, Tmp, Average, Weight float64
}

// Node is the per-cell set of pair records.
type Node struct {
	Pairs []PairForce
}

func (n *Node) locate(a, b int) (int, float64, bool) {
	for i := range n.Pairs {
		if n.Pairs[i].A == a && n.Pairs[i].B == b {
			return i, 1, true
		}
		if n.Pairs[i].A == b && n.Pairs[i].B == a {
			return i, -1, true
		}
	}
	return 0, 0, false
}

// AddRaw adds a signed force contribution to the pair {a,b}, creating the
// record oriented (a,b) when absent. A positive value as seen from (a,b)
// drives growth of a at the expense of b.
func (n *Node) AddRaw(a, b int, v float64) {
	if pos, sign, ok := n.locate(a, b); ok {
		n.Pairs[pos].Raw += sign * v
		return
	}
	n.Pairs = append(n.Pairs, PairForce{A: a, B: b, Raw: v})
}

// Raw returns the sign-corrected raw force of pair {a,b}, zero when absent.
func (n *Node) Raw(a, b int) float64 {
	if pos, sign, ok := n.locate(a, b); ok {
		return sign * n.Pairs[pos].Raw
	}
	return 0
}

// Average returns the sign-corrected averaged force of pair {a,b}.
func (n *Node) Average(a, b int) float64 {
	if pos, sign, ok := n.locate(a, b); ok {
		return sign * n.Pairs[pos].Average
	}
	return 0
}

// Tmp returns the sign-corrected collect-pass value of pair {a,b}.
func (n *Node) Tmp(a, b int) float64 {
	if pos, sign, ok := n.locate(a, b); ok {
		return sign * n.Pairs[pos].Tmp
	}
	return 0
}

// Weight returns the interface weight of pair {a,b}; weights carry no
// orientation sign.
func (n *Node) Weight(a, b int) float64 {
	if pos, _, ok := n.locate(a, b); ok {
		return n.Pairs[pos].Weight
	}
	return 0
}

// Clear drops all records.
func (n *Node) Clear() { n.Pairs = n.Pairs[:0] }

// CopyFrom deep-copies the records of src, reusing capacity.
func (n *Node) CopyFrom(src *Node) {
	n.Pairs = append(n.Pairs[:0], src.Pairs...)
}

// Storage holds one force Node per cell of a halo-padded grid.
type Storage struct {
	field.Geometry
	nodes []Node
}

// NewStorage allocates a force storage with the given halo width.
func NewStorage(p grid.Parameters, halo int) *Storage {
	g := field.NewGeometry(p, halo)
	return &Storage{Geometry: g, nodes: make([]Node, g.ExtLen())}
}

// At returns the force node at (i,j,k).
func (s *Storage) At(i, j, k int) *Node { return &s.nodes[s.Index(i, j, k)] }

// AtLinear returns the force node at the flattened extended index n.
func (s *Storage) AtLinear(n int) *Node { return &s.nodes[n] }

// CopyCell deep-copies the force node at (si,sj,sk) into (di,dj,dk).
func (s *Storage) CopyCell(di, dj, dk, si, sj, sk int) {
	s.nodes[s.Index(di, dj, dk)].CopyFrom(&s.nodes[s.Index(si, sj, sk)])
}

// Clear drops the records of every cell including the halo.
func (s *Storage) Clear() {
	for n := range s.nodes {
		s.nodes[n].Clear()
	}
}

// WeightsMode selects how the averaging passes weight neighborhood
// contributions.
type WeightsMode int

const (
	// WeightsRange weights by distance from the window edge.
	WeightsRange WeightsMode = iota
	// WeightsPhaseFields weights by the neighbor's interface weight.
	WeightsPhaseFields
	// WeightsCounter weights all contributing neighbors equally.
	WeightsCounter
)

// ParseWeightsMode converts a config string into a WeightsMode.
func ParseWeightsMode(s string) (WeightsMode, error) {
	switch s {
	case "range":
		return WeightsRange, nil
	case "phasefields":
		return WeightsPhaseFields, nil
	case "counter":
		return WeightsCounter, nil
	}
	return 0, fmt.Errorf("unknown averaging weights mode %q", s)
}
