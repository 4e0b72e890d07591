// Package logs reads the JSON log file written by crawlq runs.
//
// Tail returns the last lines of the file or the lines appended after a byte
// offset, optionally waiting for new output. Filter narrows lines to a run, a
// command, or a minimum level, and Format renders an entry for a terminal.
package logs
