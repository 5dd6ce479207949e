// Package grid holds the simulation grid geometry shared by every
// subsystem. Parameters is plain data, passed by value and never mutated
// after construction.
package grid

// Resolution selects single- or dual-grid execution.
type Resolution int

const (
	// Single runs every pass on one grid.
	Single Resolution = iota
	// Dual keeps a 2x-refined grid near interfaces alongside the coarse one.
	Dual
)

func (r Resolution) String() string {
	if r == Dual {
		return "dual"
	}
	return "single"
}

// Parameters describes the grid geometry. Axes with a single cell are
// inactive: stencils, halo fills and window loops skip them.
type Parameters struct {
	Nx, Ny, Nz    int
	DNx, DNy, DNz int // 1 for active axes, 0 otherwise
	Bcells        int // requested minimum halo width
	Dx            float64
	IWidth        int // interface width in cells
	Resolution    Resolution

	Eta        float64 // physical interface width, IWidth*Dx
	CellVolume float64
	TotalCells int
	Dimensions int
}

// New derives the dependent geometry from the primary sizes.
func New(nx, ny, nz int, dx float64, iwidth, bcells int, res Resolution) Parameters {
	p := Parameters{
		Nx: nx, Ny: ny, Nz: nz,
		Dx:         dx,
		IWidth:     iwidth,
		Bcells:     bcells,
		Resolution: res,
	}
	p.DNx = active(nx)
	p.DNy = active(ny)
	p.DNz = active(nz)
	p.Dimensions = p.DNx + p.DNy + p.DNz
	p.Eta = float64(iwidth) * dx
	p.TotalCells = nx * ny * nz
	p.CellVolume = 1.0
	for d := 0; d < p.Dimensions; d++ {
		p.CellVolume *= dx
	}
	return p
}

func active(n int) int {
	if n > 1 {
		return 1
	}
	return 0
}

// Halo is the ghost-layer width the storages actually allocate: wide enough
// for the interface profile, never narrower than the requested Bcells.
func (p Parameters) Halo() int {
	h := p.IWidth - 1
	if p.Resolution == Dual {
		h = p.IWidth / 2
	}
	if h < p.Bcells {
		h = p.Bcells
	}
	return h
}

// Doubled returns the fine-grid geometry for dual-resolution storage: twice
// the cells at half the spacing along every active axis.
func (p Parameters) Doubled() Parameters {
	nx, ny, nz := p.Nx, p.Ny, p.Nz
	if p.DNx == 1 {
		nx *= 2
	}
	if p.DNy == 1 {
		ny *= 2
	}
	if p.DNz == 1 {
		nz *= 2
	}
	d := New(nx, ny, nz, p.Dx/2, p.IWidth*2, p.Bcells*2, p.Resolution)
	return d
}
