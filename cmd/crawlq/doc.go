// Command crawlq runs and inspects the durable crawl queue.
//
// `crawlq run` recovers work left in flight by a killed process, seeds the
// root command when nothing is pending, and drives the worker loop until the
// queue is drained. The queue subcommands read and repair the SQLite store
// directly, and `crawlq results` prints what the detail commands extracted.
package main
