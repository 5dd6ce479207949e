package field

import "github.com/fennwald/polyphase/grid"

// Geometry is the shared index math of the halo-padded storages. Interior
// cells run [0,N) per axis; the halo extends the range by the axis halo on
// each side. Inactive axes carry no halo. Memory is laid out in scan order:
// x outermost, z innermost.
type Geometry struct {
	nx, ny, nz int
	hx, hy, hz int
	ey, ez     int // extended y/z sizes
}

// NewGeometry builds the index math for the given grid and halo width.
func NewGeometry(p grid.Parameters, halo int) Geometry {
	g := Geometry{
		nx: p.Nx, ny: p.Ny, nz: p.Nz,
		hx: halo * p.DNx,
		hy: halo * p.DNy,
		hz: halo * p.DNz,
	}
	g.ey = g.ny + 2*g.hy
	g.ez = g.nz + 2*g.hz
	return g
}

// Index flattens (i,j,k) into the extended scan-order offset.
func (g Geometry) Index(i, j, k int) int {
	return ((i+g.hx)*g.ey+(j+g.hy))*g.ez + (k + g.hz)
}

// Cell converts a flattened extended index back to (i,j,k).
func (g Geometry) Cell(n int) (i, j, k int) {
	k = n%g.ez - g.hz
	n /= g.ez
	j = n%g.ey - g.hy
	i = n/g.ey - g.hx
	return
}

// ExtLen returns the total number of cells including the halo.
func (g Geometry) ExtLen() int {
	return (g.nx + 2*g.hx) * g.ey * g.ez
}

// InRange reports whether (i,j,k) lies within the given halo depth. Handles
// inactive axes where the allocated halo is zero.
func (g Geometry) InRange(i, j, k, depth int) bool {
	dx := min(depth, g.hx)
	dy := min(depth, g.hy)
	dz := min(depth, g.hz)
	return i >= -dx && i < g.nx+dx &&
		j >= -dy && j < g.ny+dy &&
		k >= -dz && k < g.nz+dz
}

// SizeX returns the interior extent along x.
func (g Geometry) SizeX() int { return g.nx }

// SizeY returns the interior extent along y.
func (g Geometry) SizeY() int { return g.ny }

// SizeZ returns the interior extent along z.
func (g Geometry) SizeZ() int { return g.nz }

// HaloX returns the allocated halo width along x (zero on inactive axes).
func (g Geometry) HaloX() int { return g.hx }

// HaloY returns the allocated halo width along y.
func (g Geometry) HaloY() int { return g.hy }

// HaloZ returns the allocated halo width along z.
func (g Geometry) HaloZ() int { return g.hz }

// Storage holds one Node per cell of a halo-padded grid.
type Storage struct {
	Geometry
	nodes []Node
}

// NewStorage allocates a node storage for the given geometry and halo width.
func NewStorage(p grid.Parameters, halo int) *Storage {
	g := NewGeometry(p, halo)
	return &Storage{Geometry: g, nodes: make([]Node, g.ExtLen())}
}

// At returns the node at (i,j,k). Halo cells use negative or >=N indices.
func (s *Storage) At(i, j, k int) *Node { return &s.nodes[s.Index(i, j, k)] }

// AtLinear returns the node at the flattened extended index n.
func (s *Storage) AtLinear(n int) *Node { return &s.nodes[n] }

// CopyCell deep-copies the node at (si,sj,sk) into (di,dj,dk). Used by the
// boundary fills.
func (s *Storage) CopyCell(di, dj, dk, si, sj, sk int) {
	s.nodes[s.Index(di, dj, dk)].CopyFrom(&s.nodes[s.Index(si, sj, sk)])
}

// Clear empties every node including the halo.
func (s *Storage) Clear() {
	for n := range s.nodes {
		s.nodes[n].Clear()
	}
}

// RateStorage holds one RateNode per cell of a halo-padded grid.
type RateStorage struct {
	Geometry
	nodes []RateNode
}

// NewRateStorage allocates a rate storage matching NewStorage geometry.
func NewRateStorage(p grid.Parameters, halo int) *RateStorage {
	g := NewGeometry(p, halo)
	return &RateStorage{Geometry: g, nodes: make([]RateNode, g.ExtLen())}
}

// At returns the rate node at (i,j,k).
func (s *RateStorage) At(i, j, k int) *RateNode { return &s.nodes[s.Index(i, j, k)] }

// AtLinear returns the rate node at the flattened extended index n.
func (s *RateStorage) AtLinear(n int) *RateNode { return &s.nodes[n] }

// CopyCell deep-copies the rate node at (si,sj,sk) into (di,dj,dk).
func (s *RateStorage) CopyCell(di, dj, dk, si, sj, sk int) {
	s.nodes[s.Index(di, dj, dk)].CopyFrom(&s.nodes[s.Index(si, sj, sk)])
}

// Clear drops the records of every cell including the halo.
func (s *RateStorage) Clear() {
	for n := range s.nodes {
		s.nodes[n].Clear()
	}
}

// ScalarStorage holds a fixed number of float64 values per cell, used for
// the per-cell phase fractions.
type ScalarStorage struct {
	Geometry
	per  int
	data []float64
}

// NewScalarStorage allocates per values for every cell including the halo.
func NewScalarStorage(p grid.Parameters, halo, per int) *ScalarStorage {
	g := NewGeometry(p, halo)
	return &ScalarStorage{Geometry: g, per: per, data: make([]float64, g.ExtLen()*per)}
}

// At returns the value slice of cell (i,j,k).
func (s *ScalarStorage) At(i, j, k int) []float64 {
	n := s.Index(i, j, k) * s.per
	return s.data[n : n+s.per]
}
