// Package logging provides structured logging helpers built on log/slog.
//
// It defines the attribute vocabulary shared across the codebase (tenant,
// provider, tool, method) and utilities for logging around secrets: tokens
// are only ever logged as length markers and tenant identifiers are hashed
// before they reach a log line.
package logging
