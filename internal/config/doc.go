// Package config loads, normalizes, and validates crawlq configuration.
//
// Configuration is read from TOML (an explicit --config path, then
// ~/.config/crawlq/config.toml, then ./crawlq.toml) and layered over the
// defaults in defaults.go. A handful of environment variables override file
// values so containerized runs do not need a config file at all.
//
// Everything that opens files or sockets (the queue store, the logger, the
// rate limiter, the metrics server) reads its settings from Config; keep new
// knobs here rather than threading ad-hoc flags through the CLI.
package config
