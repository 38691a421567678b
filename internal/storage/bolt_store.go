package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"fxload/internal/report"
)

const (
	BucketRuns = "runs"
)

var ErrNotFound = errors.New("run not found")

// RunRecord is one finished run as kept in the history database.
type RunRecord struct {
	ID         string          `json:"id"`
	Time       time.Time       `json:"time"`
	ConfigFile string          `json:"configFile,omitempty"`
	Scenarios  []string        `json:"scenarios"`
	Passed     bool            `json:"passed"`
	Aborted    bool            `json:"aborted,omitempty"`
	Summary    *report.Summary `json:"summary"`
}

// Requests is the total of http_reqs in the stored summary.
func (r RunRecord) Requests() float64 {
	if r.Summary == nil {
		return 0
	}
	return r.Summary.Metrics["http_reqs"].Sum
}

// P95 is the p(95) of http_req_duration in milliseconds.
func (r RunRecord) P95() float64 {
	if r.Summary == nil {
		return 0
	}
	return r.Summary.Metrics["http_req_duration"].P95
}

// NewRecord wraps a summary for storage.
func NewRecord(s *report.Summary) RunRecord {
	return RunRecord{
		ID:         s.Meta.RunID,
		Time:       s.Meta.StartedAt,
		ConfigFile: s.Meta.ConfigFile,
		Scenarios:  s.Meta.Scenarios,
		Passed:     s.Passed,
		Aborted:    s.Meta.Aborted,
		Summary:    s,
	}
}

type Store struct {
	db       *bbolt.DB
	filePath string
}

// DefaultPath is ~/.fxload/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fxload", "history.db"), nil
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:       db,
		filePath: path,
	}, nil
}

func (s *Store) Path() string { return s.filePath }

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores rec under its ID. IDs are time ordered, so key order is run order.
func (s *Store) Save(rec RunRecord) error {
	if rec.ID == "" {
		return errors.New("run record without id")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketRuns))

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		return b.Put([]byte(rec.ID), data)
	})
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]RunRecord, error) {
	var recs []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode run %s: %w", k, err)
			}
			recs = append(recs, rec)
			if limit > 0 && len(recs) == limit {
				break
			}
		}
		return nil
	})

	return recs, err
}

func (s *Store) Get(id string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(BucketRuns)).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
