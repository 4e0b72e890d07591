package main

import (
	"strconv"
	"time"

	"crawlq/internal/command"
	"crawlq/internal/queue"
)

type recordView struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Target      string `json:"target"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"last_error,omitempty"`
	ClaimedBy   string `json:"claimed_by,omitempty"`
	Payload     string `json:"payload"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func newRecordView(rec *queue.Record) recordView {
	view := recordView{
		ID:        rec.ID,
		Kind:      rec.Kind,
		Status:    rec.Status.String(),
		Attempts:  rec.Attempts,
		LastError: rec.LastError,
		ClaimedBy: rec.ClaimedBy,
		Payload:   string(rec.Payload),
		CreatedAt: formatTimestamp(rec.CreatedAt),
		UpdatedAt: formatTimestamp(rec.UpdatedAt),
	}
	if rec.CompletedAt != nil {
		view.CompletedAt = formatTimestamp(*rec.CompletedAt)
	}
	if cmd, err := command.Decode(command.Kind(rec.Kind), rec.Payload); err == nil {
		view.Target = cmd.Target()
	} else {
		view.Target = "(undecodable payload)"
	}
	return view
}

func buildRecordRows(records []*queue.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		view := newRecordView(rec)
		status := view.Status
		if rec.Failing() {
			status += " (failing)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(view.ID, 10),
			view.Kind,
			status,
			strconv.Itoa(view.Attempts),
			view.Target,
			view.UpdatedAt,
		})
	}
	return rows
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}
