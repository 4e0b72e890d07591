package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status is the integer lifecycle state stored with each command.
type Status int

const (
	StatusPending   Status = 0
	StatusCompleted Status = 1
	StatusInFlight  Status = 2
)

var allStatuses = []Status{StatusPending, StatusInFlight, StatusCompleted}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusInFlight:
		return "in_flight"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// AllStatuses returns every status in display order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus maps a status name (as printed by String) back to a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	for _, status := range allStatuses {
		if status.String() == normalized {
			return status, true
		}
	}
	if normalized == "inflight" {
		return StatusInFlight, true
	}
	return 0, false
}

// Record is the persisted form of a command.
type Record struct {
	ID          int64
	Kind        string
	Payload     []byte
	Status      Status
	Attempts    int
	LastError   string
	FailedRun   string
	ClaimedRun  string
	ClaimedBy   string
	HeartbeatAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Failing reports whether the last execution attempt of a pending record failed.
func (r Record) Failing() bool {
	return r.Status == StatusPending && r.LastError != ""
}

// ResultRecord is a stored detail result.
type ResultRecord struct {
	URL       string
	CommandID int64
	Title     string
	Genre     string
	Year      int
	Rating    float64
	UpdatedAt time.Time
}

// HealthSummary aggregates queue counts for diagnostics.
type HealthSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	InFlight  int `json:"in_flight"`
	Completed int `json:"completed"`
	Failing   int `json:"failing"`
}

// DatabaseHealth describes the queue database for `queue health`.
type DatabaseHealth struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present,omitempty"`
	MissingColumns   []string `json:"missing_columns,omitempty"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalCommands    int      `json:"total_commands"`
	Error            string   `json:"error,omitempty"`
}
