package queue

import (
	"context"
	"fmt"
	"time"
)

// ResetInFlight returns every in-flight record to pending. It is run at
// startup, when any in-flight record belongs to a process that no longer exists.
func (s *Store) ResetInFlight(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE commands
         SET status = ?, claimed_run = NULL, claimed_by = NULL, heartbeat_at = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		now(),
		StatusInFlight,
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight commands: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat refreshes the heartbeat of an in-flight record.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	ts := now()
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE commands SET heartbeat_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		ts, ts, id, StatusInFlight,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale returns in-flight records whose heartbeat is older than cutoff
// to pending, skipping records claimed by exceptRun.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time, exceptRun string) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE commands
         SET status = ?, claimed_run = NULL, claimed_by = NULL, heartbeat_at = NULL, updated_at = ?
         WHERE status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?
           AND (claimed_run IS NULL OR claimed_run != ?)`,
		StatusPending,
		now(),
		StatusInFlight,
		formatTime(cutoff),
		exceptRun,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale commands: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed clears the failure marker on pending records whose last attempt
// failed, so a running worker picks them up again. With no ids every failing
// record is cleared.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	query := `UPDATE commands
        SET failed_run = NULL, last_error = NULL, updated_at = ?
        WHERE status = ? AND (last_error IS NOT NULL OR failed_run IS NOT NULL)`
	args := []any{now(), StatusPending}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		args = append(args, int64Args(ids)...)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed commands: %w", err)
	}
	return res.RowsAffected()
}

// PruneCompleted deletes completed records finished before cutoff.
func (s *Store) PruneCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM commands WHERE status = ? AND completed_at IS NOT NULL AND completed_at < ?`,
		StatusCompleted,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune completed commands: %w", err)
	}
	return res.RowsAffected()
}
