// Package command defines the crawl commands stored in the work queue.
//
// A command is a small serializable value: a variant tag plus the parameters
// needed to resume it from storage alone. Executing a command fetches its
// target through the Env's Fetcher and interprets the result into an Outcome
// holding follow-up commands and extracted records. Commands never touch the
// queue; the worker persists the outcome and completes the command.
//
// The set of variants is closed. Encode and Decode dispatch on the Kind tag
// and validate payloads so a record that cannot be resumed surfaces as
// ErrSerialization instead of running with zero values.
package command
