// Package logging assembles the slog loggers used by crawlq.
//
// Console output goes through tint and is coloured only when the destination
// is a terminal. JSON output uses the standard library handler with stable
// key names. When a log directory is configured every record is also written
// as JSON to crawlq.log so a run can be inspected after the fact.
//
// Context helpers attach the run id and the command being executed so the
// worker loop does not have to thread those fields by hand.
package logging
