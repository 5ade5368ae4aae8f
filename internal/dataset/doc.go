// Package dataset turns pasted or fetched text into a validated, ordered
// series of (x, y) observations.
//
// Input format:
//
//	DATE,TMAX          <- optional header (first field non-numeric)
//	# comment          <- ignored
//	2023.0014,12.5     <- comma separated
//	2023.0041  13.1    <- or whitespace separated
//	2023-01-04,11.9    <- x may be an ISO date (converted to fractional years)
//
// Lines that do not yield exactly two finite numbers are skipped and
// reported on the Dataset; parsing only fails when fewer than
// MinObservations usable rows remain. Input whose rows all share one x
// parses to a single observation with the rest counted as duplicates;
// the model rejects it as degenerate.
//
// Guarantees on a returned Dataset:
//   - Observations sorted by x (stable)
//   - x strictly increasing (later duplicates dropped, or rejected with
//     WithDuplicatePolicy(RejectDuplicates))
//   - x and y finite
//   - immutable: accessors return copies
//
// PrepareGHCN converts NOAA GHCN daily CSV into the DATE,TMAX form.
package dataset
