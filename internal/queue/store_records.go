package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert stores a new pending record and returns its id.
func (s *Store) Insert(ctx context.Context, kind string, payload []byte) (int64, error) {
	ctx = ensureContext(ctx)
	var id int64
	err := retryOnBusy(ctx, func() error {
		var insertErr error
		id, insertErr = insertRecord(ctx, s.db, kind, payload)
		return insertErr
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertRecord(ctx context.Context, db execer, kind string, payload []byte) (int64, error) {
	ts := now()
	res, err := db.ExecContext(ctx,
		`INSERT INTO commands (kind, payload, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		kind, payload, StatusPending, ts, ts,
	)
	if err != nil {
		return 0, fmt.Errorf("insert command: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// GetByID fetches a record by identifier. It returns nil when no record matches.
func (s *Store) GetByID(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM commands WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get command: %w", err)
	}
	return rec, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Statuses []Status
	Kind     string
	// FailingOnly keeps pending records whose last attempt failed.
	FailingOnly bool
	Limit       int
}

// List returns records in id order.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, `status IN (`+makePlaceholders(len(filter.Statuses))+`)`)
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.Kind != "" {
		clauses = append(clauses, `kind = ?`)
		args = append(args, filter.Kind)
	}
	if filter.FailingOnly {
		clauses = append(clauses, `status = ? AND last_error IS NOT NULL`)
		args = append(args, StatusPending)
	}

	query := `SELECT ` + recordColumns + ` FROM commands`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	return scanRecords(rows)
}

// NextPending returns the oldest pending record without claiming it, or nil.
func (s *Store) NextPending(ctx context.Context) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM commands WHERE status = ? ORDER BY id LIMIT 1`,
		StatusPending,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending: %w", err)
	}
	return rec, nil
}

// CountPending returns the number of pending records.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM commands WHERE status = ?`, StatusPending,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// Claim atomically moves the oldest pending record not failed during runID to
// in flight and returns it. It returns nil when nothing is claimable.
func (s *Store) Claim(ctx context.Context, runID, workerID string) (*Record, error) {
	ctx = ensureContext(ctx)
	var rec *Record
	err := retryOnBusy(ctx, func() error {
		ts := now()
		row := s.db.QueryRowContext(ctx,
			`UPDATE commands
             SET status = ?, claimed_run = ?, claimed_by = ?, heartbeat_at = ?, updated_at = ?
             WHERE id = (
                 SELECT id FROM commands
                 WHERE status = ? AND (failed_run IS NULL OR failed_run != ?)
                 ORDER BY id LIMIT 1
             )
             RETURNING `+recordColumns,
			StatusInFlight, runID, workerID, ts, ts,
			StatusPending, runID,
		)
		var scanErr error
		rec, scanErr = scanRecord(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim command: %w", err)
	}
	return rec, nil
}

// HasClaimable reports whether a pending record exists that runID has not
// already failed.
func (s *Store) HasClaimable(ctx context.Context, runID string) (bool, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM commands WHERE status = ? AND (failed_run IS NULL OR failed_run != ?))`,
		StatusPending, runID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check claimable: %w", err)
	}
	return exists == 1, nil
}

// InFlightCount returns the number of records claimed by runID.
func (s *Store) InFlightCount(ctx context.Context, runID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM commands WHERE status = ? AND claimed_run = ?`,
		StatusInFlight, runID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count in flight: %w", err)
	}
	return count, nil
}

// Complete marks a record completed. Completing an already completed record
// is a no-op; an unknown id returns ErrUnknownIdentity.
func (s *Store) Complete(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := completeRecord(ctx, tx, id)
		return err
	})
}

// completeRecord flips id to completed inside tx. It reports whether the
// record was already completed.
func completeRecord(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	ts := now()
	res, err := tx.ExecContext(ctx,
		`UPDATE commands
         SET status = ?, completed_at = ?, updated_at = ?, claimed_run = NULL, claimed_by = NULL, heartbeat_at = NULL
         WHERE id = ? AND status != ?`,
		StatusCompleted, ts, ts, id, StatusCompleted,
	)
	if err != nil {
		return false, fmt.Errorf("complete command %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return false, nil
	}
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM commands WHERE id = ?)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check command %d: %w", id, err)
	}
	if exists == 0 {
		return false, fmt.Errorf("%w: %d", ErrUnknownIdentity, id)
	}
	return true, nil
}

// FollowUp is a command to insert alongside a completion.
type FollowUp struct {
	Kind    string
	Payload []byte
}

// CompleteWithFollowUps inserts follow-ups, upserts results, and completes id
// in one transaction. It returns the new record ids in follow-up order. When
// the record is already completed nothing is written and ErrAlreadyCompleted
// is returned.
func (s *Store) CompleteWithFollowUps(ctx context.Context, id int64, followUps []FollowUp, results []ResultRecord) ([]int64, error) {
	var ids []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ids = ids[:0]
		for _, f := range followUps {
			newID, err := insertRecord(ctx, tx, f.Kind, f.Payload)
			if err != nil {
				return err
			}
			ids = append(ids, newID)
		}
		for _, r := range results {
			r.CommandID = id
			if err := upsertResult(ctx, tx, r); err != nil {
				return err
			}
		}
		already, err := completeRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if already {
			return fmt.Errorf("%w: %d", ErrAlreadyCompleted, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Fail returns a record to pending and records the failure against runID so
// the same run does not claim it again. A record that has since been claimed
// by another run, or completed, is left alone.
func (s *Store) Fail(ctx context.Context, id int64, runID, message string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE commands
             SET status = ?, attempts = attempts + 1, last_error = ?, failed_run = ?,
                 claimed_run = NULL, claimed_by = NULL, heartbeat_at = NULL, updated_at = ?
             WHERE id = ? AND status != ? AND (claimed_run IS NULL OR claimed_run = ?)`,
			StatusPending, nullableString(message), nullableString(runID), now(), id, StatusCompleted, runID,
		)
		if err != nil {
			return fmt.Errorf("fail command %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			return nil
		}
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM commands WHERE id = ?)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check command %d: %w", id, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %d", ErrUnknownIdentity, id)
		}
		return nil
	})
}
