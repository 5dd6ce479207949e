// Package boundary fills the ghost-cell halo of a storage according to the
// configured per-face rules. Fills run axis by axis so that edge and corner
// halo cells pick up consistent combinations.
package boundary

import "fmt"

// Rule is the boundary behavior of one face.
type Rule int

const (
	// Periodic wraps the halo around to the opposite interior edge.
	Periodic Rule = iota
	// NoFlux mirrors the interior across the face.
	NoFlux
	// Fixed leaves the halo untouched, freezing whatever was written there.
	Fixed
)

func (r Rule) String() string {
	switch r {
	case Periodic:
		return "periodic"
	case NoFlux:
		return "noflux"
	case Fixed:
		return "fixed"
	}
	return fmt.Sprintf("rule(%d)", int(r))
}

// ParseRule converts a config string into a Rule.
func ParseRule(s string) (Rule, error) {
	switch s {
	case "periodic":
		return Periodic, nil
	case "noflux":
		return NoFlux, nil
	case "fixed":
		return Fixed, nil
	}
	return 0, fmt.Errorf("unknown boundary rule %q", s)
}

// Field is the storage surface the fills operate on. CopyCell performs a
// deep copy so halo nodes never alias interior ones.
type Field interface {
	SizeX() int
	SizeY() int
	SizeZ() int
	HaloX() int
	HaloY() int
	HaloZ() int
	CopyCell(di, dj, dk, si, sj, sk int)
}

// Exchanger swaps halo layers with neighboring subdomains in distributed
// runs. The single-process implementation is nil: fills alone are enough.
type Exchanger interface {
	Exchange(f Field)
}

// Conditions holds one rule per face.
type Conditions struct {
	X0, XN Rule
	Y0, YN Rule
	Z0, ZN Rule

	// Comm, when set, exchanges subdomain halos before the local fills.
	Comm Exchanger
}

// Uniform returns conditions using the same rule on all six faces.
func Uniform(r Rule) Conditions {
	return Conditions{X0: r, XN: r, Y0: r, YN: r, Z0: r, ZN: r}
}

// Apply refreshes the halo of f along every active axis, X then Y then Z.
func (c Conditions) Apply(f Field) {
	if c.Comm != nil {
		c.Comm.Exchange(f)
	}
	if f.HaloX() > 0 {
		c.SetX(f)
	}
	if f.HaloY() > 0 {
		c.SetY(f)
	}
	if f.HaloZ() > 0 {
		c.SetZ(f)
	}
}

// SetX fills the halo planes perpendicular to x. The transverse loops run
// the full extended ranges of y and z.
func (c Conditions) SetX(f Field) {
	nx, hx := f.SizeX(), f.HaloX()
	for b := 1; b <= hx; b++ {
		for j := -f.HaloY(); j < f.SizeY()+f.HaloY(); j++ {
			for k := -f.HaloZ(); k < f.SizeZ()+f.HaloZ(); k++ {
				switch c.X0 {
				case Periodic:
					f.CopyCell(-b, j, k, nx-b, j, k)
				case NoFlux:
					f.CopyCell(-b, j, k, b-1, j, k)
				}
				switch c.XN {
				case Periodic:
					f.CopyCell(nx-1+b, j, k, b-1, j, k)
				case NoFlux:
					f.CopyCell(nx-1+b, j, k, nx-b, j, k)
				}
			}
		}
	}
}

// SetY fills the halo planes perpendicular to y.
func (c Conditions) SetY(f Field) {
	ny, hy := f.SizeY(), f.HaloY()
	for b := 1; b <= hy; b++ {
		for i := -f.HaloX(); i < f.SizeX()+f.HaloX(); i++ {
			for k := -f.HaloZ(); k < f.SizeZ()+f.HaloZ(); k++ {
				switch c.Y0 {
				case Periodic:
					f.CopyCell(i, -b, k, i, ny-b, k)
				case NoFlux:
					f.CopyCell(i, -b, k, i, b-1, k)
				}
				switch c.YN {
				case Periodic:
					f.CopyCell(i, ny-1+b, k, i, b-1, k)
				case NoFlux:
					f.CopyCell(i, ny-1+b, k, i, ny-b, k)
				}
			}
		}
	}
}

// SetZ fills the halo planes perpendicular to z.
func (c Conditions) SetZ(f Field) {
	nz, hz := f.SizeZ(), f.HaloZ()
	for b := 1; b <= hz; b++ {
		for i := -f.HaloX(); i < f.SizeX()+f.HaloX(); i++ {
			for j := -f.HaloY(); j < f.SizeY()+f.HaloY(); j++ {
				switch c.Z0 {
				case Periodic:
					f.CopyCell(i, j, -b, i, j, nz-b)
				case NoFlux:
					f.CopyCell(i, j, -b, i, j, b-1)
				}
				switch c.ZN {
				case Periodic:
					f.CopyCell(i, j, nz-1+b, i, j, b-1)
				case NoFlux:
					f.CopyCell(i, j, nz-1+b, i, j, nz-b)
				}
			}
		}
	}
}
