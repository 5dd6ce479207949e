// Package checkpoint persists the simulation state: a raw binary format
// for the field storages and grain registry, plus a sqlite archive that
// keeps gzipped snapshots with run metadata.
package checkpoint

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/fennwald/polyphase/field"
	"github.com/fennwald/polyphase/grains"
	"github.com/fennwald/polyphase/grid"
	"github.com/fennwald/polyphase/phasefield"
)

// Write serializes the kernel state: the grid extents as a header, the
// interior cells of the coarse field in scan order, the fine field in dual
// resolution, then the grain registry. Little endian throughout; transient
// per-cell state (flags, derivatives) is rebuilt on read.
func Write(w io.Writer, k *phasefield.Kernel) error {
	p := k.Grid
	for _, n := range []int32{int32(p.Nx), int32(p.Ny), int32(p.Nz)} {
		if err := binary.Write(w, binary.LittleEndian, n); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	if err := writeCells(w, k.Fields, p.Nx, p.Ny, p.Nz); err != nil {
		return fmt.Errorf("writing coarse field: %w", err)
	}
	if p.Resolution == grid.Dual {
		if err := writeCells(w, k.FieldsDR, k.Fine.Nx, k.Fine.Ny, k.Fine.Nz); err != nil {
			return fmt.Errorf("writing fine field: %w", err)
		}
	}
	if err := writeRegistry(w, k.Reg); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	return nil
}

// Read restores a kernel from the serialized form. The kernel must be
// allocated with the same grid extents; a mismatch returns an error and
// leaves the kernel untouched. The finalize pipeline runs afterwards so
// flags, derivatives, fractions and the registry lifecycle are consistent.
func Read(r io.Reader, k *phasefield.Kernel) error {
	var nx, ny, nz int32
	for _, n := range []*int32{&nx, &ny, &nz} {
		if err := binary.Read(r, binary.LittleEndian, n); err != nil {
			return fmt.Errorf("reading header: %w", err)
		}
	}
	p := k.Grid
	if int(nx) != p.Nx || int(ny) != p.Ny || int(nz) != p.Nz {
		return fmt.Errorf("grid mismatch: checkpoint %dx%dx%d, kernel %dx%dx%d",
			nx, ny, nz, p.Nx, p.Ny, p.Nz)
	}

	if err := readCells(r, k.Fields, p.Nx, p.Ny, p.Nz); err != nil {
		return fmt.Errorf("reading coarse field: %w", err)
	}
	if p.Resolution == grid.Dual {
		if err := readCells(r, k.FieldsDR, k.Fine.Nx, k.Fine.Ny, k.Fine.Nz); err != nil {
			return fmt.Errorf("reading fine field: %w", err)
		}
	}
	if err := readRegistry(r, k.Reg); err != nil {
		return fmt.Errorf("reading registry: %w", err)
	}

	k.Finalize(true)
	return nil
}

func writeCells(w io.Writer, s *field.Storage, nx, ny, nz int) error {
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for m := 0; m < nz; m++ {
				if err := s.At(i, j, m).WriteTo(w); err != nil {
					return fmt.Errorf("cell (%d,%d,%d): %w", i, j, m, err)
				}
			}
		}
	}
	return nil
}

func readCells(r io.Reader, s *field.Storage, nx, ny, nz int) error {
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for m := 0; m < nz; m++ {
				if err := s.At(i, j, m).ReadFrom(r); err != nil {
					return fmt.Errorf("cell (%d,%d,%d): %w", i, j, m, err)
				}
			}
		}
	}
	return nil
}

// grainRecord is the fixed-size wire form of one registry entry.
type grainRecord struct {
	Phase, Variant int32
	Exist          uint8
	Stage          uint8
	Violation      uint8
	Volume         float64
	MaxVolume      float64
	RefVolume      float64
	VolumeRatio    float64
	Center         [3]float64
	Orientation    float64
}

func writeRegistry(w io.Writer, reg *grains.Registry) error {
	if err := binary.Write(w, binary.LittleEndian, int32(reg.Len())); err != nil {
		return err
	}
	for idx := range reg.Grains {
		g := &reg.Grains[idx]
		rec := grainRecord{
			Phase:       int32(g.Phase),
			Variant:     int32(g.Variant),
			Exist:       b2u(g.Exist),
			Stage:       uint8(g.Stage),
			Violation:   uint8(g.Violation),
			Volume:      g.Volume,
			MaxVolume:   g.MaxVolume,
			RefVolume:   g.RefVolume,
			VolumeRatio: g.VolumeRatio,
			Center:      g.Center,
			Orientation: g.Orientation,
		}
		if err := binary.Write(w, binary.LittleEndian, &rec); err != nil {
			return err
		}
	}
	return nil
}

func readRegistry(r io.Reader, reg *grains.Registry) error {
	var count int32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}
	if count < 0 {
		return fmt.Errorf("negative grain count %d", count)
	}
	reg.Grains = reg.Grains[:0]
	for idx := int32(0); idx < count; idx++ {
		var rec grainRecord
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return err
		}
		reg.Grains = append(reg.Grains, grains.Grain{
			Phase:       int(rec.Phase),
			Variant:     int(rec.Variant),
			Exist:       rec.Exist != 0,
			Stage:       grains.Stage(rec.Stage),
			Violation:   grains.Violation(rec.Violation),
			Volume:      rec.Volume,
			MaxVolume:   rec.MaxVolume,
			RefVolume:   rec.RefVolume,
			VolumeRatio: rec.VolumeRatio,
			Center:      rec.Center,
			Orientation: rec.Orientation,
		})
	}
	return nil
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// SaveFile writes a checkpoint to path through a buffered writer.
func SaveFile(path string, k *phasefield.Kernel) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating checkpoint: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, k); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing checkpoint: %w", err)
	}
	return f.Close()
}

// LoadFile restores a checkpoint from path.
func LoadFile(path string, k *phasefield.Kernel) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()
	return Read(bufio.NewReader(f), k)
}
