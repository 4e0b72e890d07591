package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// Stats counts records per status. Statuses with no records are absent.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM commands GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output. Failing counts pending
// records that carry an error from an earlier attempt.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	var health HealthSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(1),
			COALESCE(SUM(status = ?), 0),
			COALESCE(SUM(status = ?), 0),
			COALESCE(SUM(status = ?), 0),
			COALESCE(SUM(status = ? AND last_error IS NOT NULL), 0)
		FROM commands`,
		StatusPending, StatusInFlight, StatusCompleted, StatusPending,
	).Scan(&health.Total, &health.Pending, &health.InFlight, &health.Completed, &health.Failing)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("queue health: %w", err)
	}
	return health, nil
}

// CheckHealth inspects the database file and schema for `queue health`. A
// missing file is reported through DatabaseExists rather than an error.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return health, nil
	case err != nil:
		return health, fmt.Errorf("stat queue database: %w", err)
	case info.IsDir():
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	fail := func(step string, err error) (DatabaseHealth, error) {
		health.Error = err.Error()
		return health, fmt.Errorf("%s: %w", step, err)
	}

	if err := s.db.PingContext(ctx); err != nil {
		return fail("ping queue database", err)
	}
	health.DatabaseReadable = true

	columns, err := s.tableColumns(ctx, "commands")
	if err != nil {
		return fail("inspect commands table", err)
	}
	health.TableExists = len(columns) > 0
	if health.TableExists {
		health.ColumnsPresent = columns
		for _, want := range strings.Split(recordColumns, ", ") {
			if !slices.Contains(columns, want) {
				health.MissingColumns = append(health.MissingColumns, want)
			}
		}
		slices.Sort(health.MissingColumns)
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM commands").Scan(&health.TotalCommands); err != nil {
			return fail("count commands", err)
		}
	}

	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fail("read schema version", err)
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fail("integrity check", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}

// tableColumns lists the columns of table, or nothing if it does not exist.
func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}
