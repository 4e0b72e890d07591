// Package queue persists crawl commands in SQLite and exposes the Queue used
// by the worker loop.
//
// The Store owns the commands table: one row per command with its variant tag,
// JSON payload, and an integer status (0 pending, 1 completed, 2 in flight).
// Ids come from AUTOINCREMENT, so ordering by id is insertion order and the
// oldest pending command is always served first. Completed rows are kept as a
// resume trail until pruned explicitly.
//
// Queue layers command encoding on top of the Store. Claim flips a record to
// in flight atomically so several workers never execute the same command, and
// Commit writes follow-up commands, extracted results, and the completion in
// one transaction. A crash before Commit leaves the command pending (after
// ResetInFlight) and none of its follow-ups persisted.
//
// Schema changes bump schemaVersion in schema.go; an older database must be
// removed before it can be opened.
package queue
