package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Entry is one decoded line of the JSON log file. Fields holds every
// attribute that is not promoted to a named field.
type Entry struct {
	Time      string
	Level     string
	Message   string
	Component string
	RunID     string
	CommandID int64
	Kind      string
	Fields    map[string]any
}

// ParseEntry decodes a JSON log line.
func ParseEntry(line string) (Entry, error) {
	raw := map[string]any{}
	decoder := json.NewDecoder(strings.NewReader(line))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return Entry{}, fmt.Errorf("decode log line: %w", err)
	}
	entry := Entry{
		Time:      takeString(raw, "ts"),
		Level:     strings.ToLower(takeString(raw, "level")),
		Message:   takeString(raw, "msg"),
		Component: takeString(raw, "component"),
		RunID:     takeString(raw, "run_id"),
		Kind:      takeString(raw, "kind"),
	}
	if value, ok := raw["command_id"].(json.Number); ok {
		if id, err := value.Int64(); err == nil {
			entry.CommandID = id
			delete(raw, "command_id")
		}
	}
	entry.Fields = raw
	return entry, nil
}

func takeString(raw map[string]any, key string) string {
	value, ok := raw[key].(string)
	if !ok {
		return ""
	}
	delete(raw, key)
	return value
}

// Filter selects log entries. Zero-valued fields match everything.
type Filter struct {
	RunID     string
	CommandID int64
	MinLevel  string
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Validate rejects unknown level names.
func (f Filter) Validate() error {
	if f.MinLevel == "" {
		return nil
	}
	if _, ok := levelRank[strings.ToLower(f.MinLevel)]; !ok {
		return fmt.Errorf("unknown log level %q (want debug, info, warn, or error)", f.MinLevel)
	}
	return nil
}

func (f Filter) active() bool {
	return f.RunID != "" || f.CommandID != 0 || f.MinLevel != ""
}

// Match reports whether entry passes the filter.
func (f Filter) Match(entry Entry) bool {
	if f.RunID != "" && !strings.HasPrefix(entry.RunID, f.RunID) {
		return false
	}
	if f.CommandID != 0 && entry.CommandID != f.CommandID {
		return false
	}
	if f.MinLevel != "" {
		want := levelRank[strings.ToLower(f.MinLevel)]
		got, ok := levelRank[entry.Level]
		if !ok || got < want {
			return false
		}
	}
	return true
}

// Apply keeps the lines that decode and match. Without an active filter the
// lines are returned unchanged, including ones that are not JSON.
func (f Filter) Apply(lines []string) []string {
	if !f.active() {
		return lines
	}
	kept := lines[:0:0]
	for _, line := range lines {
		entry, err := ParseEntry(line)
		if err != nil || !f.Match(entry) {
			continue
		}
		kept = append(kept, line)
	}
	return kept
}

// Format renders a log line for a terminal. Lines that are not JSON are
// returned as-is.
func Format(line string) string {
	entry, err := ParseEntry(line)
	if err != nil {
		return line
	}
	var b strings.Builder
	if entry.Time != "" {
		b.WriteString(entry.Time)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(entry.Level))
	if entry.Component != "" {
		fmt.Fprintf(&b, " [%s]", entry.Component)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	if entry.CommandID != 0 {
		fmt.Fprintf(&b, " command=%d", entry.CommandID)
	}
	if entry.Kind != "" {
		fmt.Fprintf(&b, " kind=%s", entry.Kind)
	}
	keys := make([]string, 0, len(entry.Fields))
	for key := range entry.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, entry.Fields[key])
	}
	return b.String()
}
