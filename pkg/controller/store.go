package controller

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cuemby/ridgeline/pkg/types"
)

// record is the persisted shape of a workload, independent of
// statemanager's richer in-memory Workload (which also tracks observed
// instances the controller never sees directly).
type record struct {
	WorkloadID string                      `json:"workload_id"`
	Name       string                      `json:"name"`
	Namespace  string                      `json:"namespace"`
	Definition json.RawMessage             `json:"definition"`
	Status     types.WorkloadDesiredStatus `json:"status"`
	CreatedAt  time.Time                   `json:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

// Store is the controller's SQLite-backed persistence layer: a single
// "cluster" table of opaque (id, name, value) rows, following spec.md
// §6's storage shape rather than one table per resource kind, since a
// controller that only ever stores workloads today but may grow more
// resource kinds later shouldn't need a migration for each one.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the SQLite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("controller: failed to open sqlite at %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cluster (
		id    TEXT PRIMARY KEY,
		name  TEXT NOT NULL,
		value BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("controller: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func workloadRowID(workloadID string) string {
	return "workload/" + workloadID
}

// Put upserts a workload record.
func (s *Store) Put(rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("controller: failed to marshal record: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO cluster (id, name, value) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, value = excluded.value`,
		workloadRowID(rec.WorkloadID), rec.Name, data,
	)
	if err != nil {
		return fmt.Errorf("controller: failed to upsert workload %s: %w", rec.WorkloadID, err)
	}
	return nil
}

// Get retrieves a workload record by id.
func (s *Store) Get(workloadID string) (record, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT value FROM cluster WHERE id = ?`, workloadRowID(workloadID)).Scan(&data)
	if err == sql.ErrNoRows {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, fmt.Errorf("controller: failed to get workload %s: %w", workloadID, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, false, fmt.Errorf("controller: failed to unmarshal workload %s: %w", workloadID, err)
	}
	return rec, true, nil
}

// List returns every workload record, using a LIKE prefix match on the
// "workload/" namespace so the same table could hold other resource
// kinds without List accidentally returning them.
func (s *Store) List() ([]record, error) {
	rows, err := s.db.Query(`SELECT value FROM cluster WHERE id LIKE 'workload/%'`)
	if err != nil {
		return nil, fmt.Errorf("controller: failed to list workloads: %w", err)
	}
	defer rows.Close()

	var recs []record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("controller: failed to scan workload row: %w", err)
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("controller: failed to unmarshal workload row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Delete removes a workload record.
func (s *Store) Delete(workloadID string) error {
	_, err := s.db.Exec(`DELETE FROM cluster WHERE id = ?`, workloadRowID(workloadID))
	if err != nil {
		return fmt.Errorf("controller: failed to delete workload %s: %w", workloadID, err)
	}
	return nil
}
