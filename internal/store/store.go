// Package store handles SQLite persistence of the operation journal.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/electmap/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for journaled operations.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS operations (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			recorded_at TEXT NOT NULL,
			kind TEXT NOT NULL,
			params TEXT NOT NULL,
			changed INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS operation_seats (
			operation_id TEXT NOT NULL,
			party_id TEXT NOT NULL,
			party_name TEXT NOT NULL,
			color TEXT NOT NULL,
			seats INTEGER NOT NULL,
			PRIMARY KEY (operation_id, party_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_operations_kind ON operations(kind);`,
		`CREATE INDEX IF NOT EXISTS idx_operation_seats_party ON operation_seats(party_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordOperation stores an operation and the seat totals it produced. A
// missing ID or time is filled in; the stored ID is returned.
func (s *Store) RecordOperation(ctx context.Context, op model.Operation, seats []model.PartyTotal) (string, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.RecordedAt.IsZero() {
		op.RecordedAt = time.Now()
	}
	if op.Params == "" {
		op.Params = "{}"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO operations (id, recorded_at, kind, params, changed)
		 VALUES (?, ?, ?, ?, ?)`,
		op.ID,
		op.RecordedAt.UTC().Format(time.RFC3339Nano),
		op.Kind,
		op.Params,
		op.Changed,
	)
	if err != nil {
		return "", err
	}

	if len(seats) > 0 {
		var stmt *sql.Stmt
		stmt, err = tx.PrepareContext(ctx,
			`INSERT INTO operation_seats (operation_id, party_id, party_name, color, seats)
			 VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return "", err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, p := range seats {
			if _, err = stmt.ExecContext(ctx, op.ID, p.PartyID, p.Name, p.Color, p.Seats); err != nil {
				return "", err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return op.ID, nil
}

// ListOperations returns the most recent operations, newest first. A
// non-positive limit returns all of them.
func (s *Store) ListOperations(ctx context.Context, limit int) ([]model.Operation, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recorded_at, kind, params, changed
		 FROM operations
		 ORDER BY seq DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var ops []model.Operation
	for rows.Next() {
		var op model.Operation
		var recordedAt string
		if err := rows.Scan(&op.ID, &recordedAt, &op.Kind, &op.Params, &op.Changed); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, err
		}
		op.RecordedAt = parsed
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ops, nil
}

// OperationSeats returns the seat totals stored with one operation.
func (s *Store) OperationSeats(ctx context.Context, operationID string) ([]model.PartyTotal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT party_id, party_name, color, seats
		 FROM operation_seats
		 WHERE operation_id = ?
		 ORDER BY seats DESC, party_id ASC`, operationID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.PartyTotal
	for rows.Next() {
		var p model.PartyTotal
		if err := rows.Scan(&p.PartyID, &p.Name, &p.Color, &p.Seats); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SeatTimeline returns a party's seat total after each operation, oldest first.
func (s *Store) SeatTimeline(ctx context.Context, partyID string) ([]model.SeatPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.id, o.recorded_at, o.kind, os.seats
		 FROM operation_seats os
		 JOIN operations o ON o.id = os.operation_id
		 WHERE os.party_id = ?
		 ORDER BY o.seq ASC`, partyID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var points []model.SeatPoint
	for rows.Next() {
		var p model.SeatPoint
		var recordedAt string
		if err := rows.Scan(&p.OperationID, &recordedAt, &p.Kind, &p.Seats); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, err
		}
		p.RecordedAt = parsed
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}
