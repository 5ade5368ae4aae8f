// Package harness runs tmaxfit scenarios as executable acceptance tests.
//
// A scenario names an input series, a sampler and a run configuration,
// the outcome it expects and a list of assertions over the result. The
// harness drives the whole session pipeline (parse, model, chains,
// summary, plots) against in-memory surfaces.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: linear_recovery
//	description: "Perfectly linear data recovers its line"
//	input: |
//	  1,10
//	  2,12
//	sampler:
//	  kind: hmc
//	run: { seed: 42, chains: 2, tuning: 50, samples: 50 }
//	expect:
//	  status: ok
//	assertions:
//	  - type: predict
//	    x: 2.5
//	    want: 13
//	    tolerance: 1.5
//
// # Assertion Types
//
//   - draw_count: tuning and sampling draw totals
//   - chain_count: number of chains in the summary
//   - predict: fitted mean at x within tolerance
//   - param_mean: posterior mean of a parameter within tolerance
//   - band_ordered: lower <= mean <= upper at every fit point
//   - sampler_calls: how many chains reached the sampler
//   - distinct_seeds: every chain got its own seed
//   - final_state: session state after the run
//   - reproducible: a second run yields bit-identical draws
//   - store_roundtrip: draws survive the SQLite store unchanged
//
// # Deterministic Testing
//
// Every run uses a fixed run ID and a stepping clock, so snapshots of a
// deterministic sampler are byte-identical across runs and can be
// compared against golden files in testdata/golden.
package harness
