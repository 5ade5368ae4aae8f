// Package store provides SQLite-backed storage for fit runs.
//
// Tables:
//   - datasets: normalized input text, keyed by content digest
//   - runs: one row per run with its config, status and digests
//   - draws: every draw of a run, tuning included
//   - fit_points: the summarized fit curve of a run
//
// Runs are ordered by a logical seq assigned at write time, never by
// timestamps. Draw reads are ordered ORDER BY chain_index, iteration, the
// same chain-major order the engine produces, so a stored run's digest
// matches the digest of the run that wrote it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
