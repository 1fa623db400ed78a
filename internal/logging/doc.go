// Package logging provides structured JSON logging for kbresolve.
//
// Logs are written to a size-rotated file (default ~/.kbresolve/logs/)
// using log/slog, optionally mirrored to stderr. CLI commands call Setup
// once and hand the returned cleanup function to a defer.
package logging
