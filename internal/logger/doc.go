// Package logger provides a small leveled logger shared by the server,
// the worker pool and the admin API.
//
// Every entry carries a timestamp, a level, an optional source tag and the
// message. The source tag names where the entry came from, for example a
// worker ("worker-2") or a client connection ("conn-127.0.0.1:53412").
//
// # Basic Usage
//
//	logger.Info("", "listening on %s", addr)
//	logger.Warn(logger.WorkerSource(3), "job failed: %v", err)
//
// Creating a dedicated logger:
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("accept", "connection from %s", remote)
//
// # Log Levels
//
// Messages below the configured level are dropped. ParseLevel converts the
// names used in configuration files ("debug", "info", "warn", "error").
//
// # Thread Safety
//
// A Logger serializes writes with a mutex and is safe for concurrent use.
package logger
