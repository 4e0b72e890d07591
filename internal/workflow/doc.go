// Package workflow drives the crawl queue to completion.
//
// A Runner claims pending commands, executes them against the fetch and
// extraction collaborators, and commits their follow-ups and results in one
// store transaction before the command is marked complete. A heartbeat keeps
// each in-flight record fresh, and a per-run failure marker lets the loop skip
// a command whose fetch failed so the run still terminates. The next run
// retries it.
//
// Lock guards a data directory so only one process resets and drives the
// queue at a time.
package workflow
