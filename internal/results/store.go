// Package results keeps scenario outcomes in a single-file bbolt database so
// that runs can be compared and reported after the fact.
package results

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/kuitang/persona-e2e/internal/artifacts"
)

const connectTimeout = 5 * time.Second

var (
	runsBucket     = []byte("runs")
	outcomesBucket = []byte("outcomes")
)

// Times keep nanoseconds and zone.
var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Status of one scenario execution.
type Status string

const (
	Passed  Status = "passed"
	Failed  Status = "failed"
	Skipped Status = "skipped"
)

// Run describes one invocation of the suite.
type Run struct {
	ID       string    `cbor:"1,keyasint"`
	Started  time.Time `cbor:"2,keyasint"`
	Finished time.Time `cbor:"3,keyasint,omitempty"`
	Envs     []string  `cbor:"4,keyasint"`
	Browsers []string  `cbor:"5,keyasint"`
	Pattern  string    `cbor:"6,keyasint"`
}

// Outcome is the result of one scenario in one browser and environment.
type Outcome struct {
	RunID     string         `cbor:"1,keyasint"`
	Scenario  string         `cbor:"2,keyasint"`
	Browser   string         `cbor:"3,keyasint"`
	Env       string         `cbor:"4,keyasint"`
	Status    Status         `cbor:"5,keyasint"`
	Error     string         `cbor:"6,keyasint,omitempty"`
	ErrorCode string         `cbor:"7,keyasint,omitempty"`
	Started   time.Time      `cbor:"8,keyasint"`
	Duration  time.Duration  `cbor:"9,keyasint"`
	Snapshot  *artifacts.Ref `cbor:"10,keyasint,omitempty"`
}

// Store is an open results database.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("results: create dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: connectTimeout})
	if err != nil {
		return nil, fmt.Errorf("results: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{runsBucket, outcomesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("results: initialize %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun inserts or replaces a run record.
func (s *Store) SaveRun(run Run) error {
	if run.ID == "" {
		return fmt.Errorf("results: run has no ID")
	}
	raw, err := encMode.Marshal(run)
	if err != nil {
		return fmt.Errorf("results: marshal run: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).Put([]byte(run.ID), raw)
	})
}

// Record appends an outcome to its run. Outcomes keep insertion order.
func (s *Store) Record(o Outcome) error {
	if o.RunID == "" {
		return fmt.Errorf("results: outcome has no run ID")
	}
	raw, err := encMode.Marshal(o)
	if err != nil {
		return fmt.Errorf("results: marshal outcome: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(outcomesBucket).CreateBucketIfNotExists([]byte(o.RunID))
		if err != nil {
			return fmt.Errorf("results: outcome bucket for %s: %w", o.RunID, err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return b.Put(key[:], raw)
	})
}

// Outcomes returns every outcome recorded for runID in insertion order.
func (s *Store) Outcomes(runID string) ([]Outcome, error) {
	var out []Outcome
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(outcomesBucket).Bucket([]byte(runID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var o Outcome
			if err := cbor.Unmarshal(v, &o); err != nil {
				return fmt.Errorf("results: unmarshal outcome: %w", err)
			}
			out = append(out, o)
			return nil
		})
	})
	return out, err
}

// Runs returns every run, newest first.
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(_, v []byte) error {
			var r Run
			if err := cbor.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("results: unmarshal run: %w", err)
			}
			runs = append(runs, r)
			return nil
		})
	})
	slices.SortFunc(runs, func(a, b Run) int { return b.Started.Compare(a.Started) })
	return runs, err
}

// Run looks up one run.
func (s *Store) Run(id string) (Run, bool, error) {
	var r Run
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(runsBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return cbor.Unmarshal(v, &r)
	})
	return r, found, err
}

// Latest returns the most recently started run.
func (s *Store) Latest() (Run, bool, error) {
	runs, err := s.Runs()
	if err != nil || len(runs) == 0 {
		return Run{}, false, err
	}
	return runs[0], true, nil
}
