/*
Package log provides structured logging for stratadb using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("recovery")                │          │
	│  │  - WithRunID("run-abc123")                  │          │
	│  │  - WithTxnID("txn-xyz789")                  │          │
	│  │  - WithShard(3)                             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "recovery",                 │          │
	│  │    "time": "2026-07-30T10:30:00Z",          │          │
	│  │    "message": "wal replay complete"          │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2026-07-30T10:30:00Z INF wal replay complete component=recovery │  │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all stratadb packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithRunID: Add run ID context
  - WithTxnID: Add transaction ID context
  - WithShard: Add shard index context

# Usage

Initializing the Logger:

	import "github.com/stratadb-labs/strata-core-sub010/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("database opened")
	log.Debug("checking wal segment boundary")
	log.Warn("checkpoint lagging behind wal tail")
	log.Error("failed to fsync wal segment")
	log.Fatal("cannot open data directory") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("run_id", "run-123").
		Int("shard", 4).
		Msg("transaction committed")

	log.Logger.Error().
		Err(err).
		Str("run_id", "run-abc").
		Msg("wal replay failed")

Component Loggers:

	// Create component-specific logger
	recoveryLog := log.WithComponent("recovery")
	recoveryLog.Info().Msg("starting wal replay")
	recoveryLog.Debug().Str("run_id", "run-123").Msg("buffering transaction")

	// Multiple context fields
	txnLog := log.WithComponent("txn").
		With().Str("run_id", "run-abc").
		Str("txn_id", "txn-123").Logger()
	txnLog.Info().Msg("committing transaction")
	txnLog.Error().Err(err).Msg("commit failed")

Context Logger Helpers:

	// Run-specific logs
	runLog := log.WithRunID("run-abc123")
	runLog.Info().Msg("run created")

	// Transaction-specific logs
	txnLog2 := log.WithTxnID("txn-xyz789")
	txnLog2.Info().Msg("transaction committed")

	// Shard-specific logs
	shardLog := log.WithShard(3)
	shardLog.Info().Msg("shard compacted")

Complete Example:

	package main

	import (
		"os"

		"github.com/stratadb-labs/strata-core-sub010/pkg/log"
	)

	func main() {
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("stratadb starting")

		recoveryLog := log.WithComponent("recovery")
		recoveryLog.Info().
			Str("run_id", "run-1").
			Int("records_applied", 512).
			Msg("wal replay complete")

		log.Info("stratadb ready")
	}

# Integration Points

This package integrates with:

  - internal/recovery: Logs checkpoint load and WAL replay progress
  - internal/txn: Logs commit/abort outcomes and conflicts
  - internal/wal: Logs WAL open and flush failures
  - pkg/stratadb: Logs database open/close lifecycle

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"recovery","run_id":"run-1","time":"2026-07-30T10:30:00Z","message":"wal replay started"}
	{"level":"info","component":"txn","run_id":"run-1","txn_id":"txn-9","time":"2026-07-30T10:30:01Z","message":"transaction committed"}
	{"level":"error","component":"wal","shard":4,"error":"short write","time":"2026-07-30T10:30:02Z","message":"fsync failed"}

Console Format (Development):

	2026-07-30T10:30:00Z INF wal replay started component=recovery run_id=run-1
	2026-07-30T10:30:01Z INF transaction committed component=txn run_id=run-1 txn_id=txn-9
	2026-07-30T10:30:02Z ERR fsync failed component=wal shard=4 error="short write"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Consistent error format across codebase

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces
  - Include context (run ID, txn ID, shard)

Don't:
  - Log sensitive data (embeddings, document contents)
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Int)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
