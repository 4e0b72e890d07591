package queue

import (
	"context"
	"fmt"
)

func upsertResult(ctx context.Context, db execer, r ResultRecord) error {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO results (url, command_id, title, genre, year, rating, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(url) DO UPDATE SET
             command_id = excluded.command_id,
             title = excluded.title,
             genre = excluded.genre,
             year = excluded.year,
             rating = excluded.rating,
             updated_at = excluded.updated_at`,
		r.URL, r.CommandID, r.Title, nullableString(r.Genre), r.Year, r.Rating, now(),
	); err != nil {
		return fmt.Errorf("save result %s: %w", r.URL, err)
	}
	return nil
}

// SaveResult upserts a detail result keyed by URL.
func (s *Store) SaveResult(ctx context.Context, r ResultRecord) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		return upsertResult(ctx, s.db, r)
	})
}

// ListResults returns stored results ordered by genre then title.
func (s *Store) ListResults(ctx context.Context) ([]ResultRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, command_id, title, COALESCE(genre, ''), COALESCE(year, 0), COALESCE(rating, 0), updated_at
         FROM results ORDER BY genre, title, url`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []ResultRecord
	for rows.Next() {
		var (
			r          ResultRecord
			updatedRaw string
		)
		if err := rows.Scan(&r.URL, &r.CommandID, &r.Title, &r.Genre, &r.Year, &r.Rating, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if updated, err := parseTimeString(updatedRaw); err == nil {
			r.UpdatedAt = updated
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
