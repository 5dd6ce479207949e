package checkpoint

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fennwald/polyphase/phasefield"
)

// ErrNoSnapshot is returned when the archive holds nothing for the query.
var ErrNoSnapshot = errors.New("no snapshot found")

// Snapshot is one archived simulation state with its run metadata. Blob is
// the gzipped binary checkpoint.
type Snapshot struct {
	RunID      string
	Step       int
	SimTime    float64
	Nx, Ny, Nz int
	Grains     int
	Blob       []byte
	CreatedAt  time.Time
}

// Capture serializes and compresses the kernel state into a snapshot.
func Capture(k *phasefield.Kernel, runID string, step int, simTime float64) (*Snapshot, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := Write(zw, k); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	return &Snapshot{
		RunID:   runID,
		Step:    step,
		SimTime: simTime,
		Nx:      k.Grid.Nx,
		Ny:      k.Grid.Ny,
		Nz:      k.Grid.Nz,
		Grains:  k.Reg.Len(),
		Blob:    buf.Bytes(),
	}, nil
}

// Restore decompresses the snapshot into the kernel.
func (s *Snapshot) Restore(k *phasefield.Kernel) error {
	zr, err := gzip.NewReader(bytes.NewReader(s.Blob))
	if err != nil {
		return fmt.Errorf("decompressing snapshot: %w", err)
	}
	defer zr.Close()
	return Read(zr, k)
}

// Store archives snapshots keyed by run and step. The sim driver holds one
// and treats an unset store as disabled.
type Store interface {
	InsertSnapshot(s *Snapshot) error
	LatestSnapshot(runID string) (*Snapshot, error)
	SnapshotAt(runID string, step int) (*Snapshot, error)
	Close() error
}

// Archive is the sqlite-backed Store. The sqlite driver is registered by
// the binary with a blank import of modernc.org/sqlite.
type Archive struct {
	db *sql.DB
}

// OpenArchive opens or creates the archive database at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			sim_time DOUBLE NOT NULL,
			nx INTEGER NOT NULL,
			ny INTEGER NOT NULL,
			nz INTEGER NOT NULL,
			grains INTEGER NOT NULL,
			blob BLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(run_id, step)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// InsertSnapshot stores or replaces the snapshot for its run and step.
func (a *Archive) InsertSnapshot(s *Snapshot) error {
	_, err := a.db.Exec(`
		INSERT OR REPLACE INTO snapshots (run_id, step, sim_time, nx, ny, nz, grains, blob)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Step, s.SimTime, s.Nx, s.Ny, s.Nz, s.Grains, s.Blob)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the highest-step snapshot of the run.
func (a *Archive) LatestSnapshot(runID string) (*Snapshot, error) {
	row := a.db.QueryRow(`
		SELECT run_id, step, sim_time, nx, ny, nz, grains, blob, created_at
		FROM snapshots WHERE run_id = ? ORDER BY step DESC LIMIT 1`, runID)
	return scanSnapshot(row)
}

// SnapshotAt returns the snapshot of the run at the given step.
func (a *Archive) SnapshotAt(runID string, step int) (*Snapshot, error) {
	row := a.db.QueryRow(`
		SELECT run_id, step, sim_time, nx, ny, nz, grains, blob, created_at
		FROM snapshots WHERE run_id = ? AND step = ?`, runID, step)
	return scanSnapshot(row)
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	return a.db.Close()
}

func scanSnapshot(row *sql.Row) (*Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.RunID, &s.Step, &s.SimTime, &s.Nx, &s.Ny, &s.Nz,
		&s.Grains, &s.Blob, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}
	return &s, nil
}
