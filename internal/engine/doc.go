// Package engine implements the chain orchestrator: it runs one sampler
// chain per task and assembles the draws into a RunResult.
//
// ARCHITECTURE:
//
// Single-Writer Task Loop:
// Run enqueues one task per chain on a FIFO queue and drains it in the
// calling goroutine. Only that loop appends to the result, so chains are
// strictly sequential and the output order is chain-major, iteration-minor.
//
// Task Processing Flow:
//  1. Validate the RunConfig and check the step budget
//  2. Enqueue chain tasks 0..ChainCount-1 (seq stamped by Clock)
//  3. For each task: check ctx, derive ChainSeed, call Sampler.Sample
//  4. Verify the returned draws against the sampler contract
//  5. Decode positions through the target and append to the result
//  6. Between tasks, hand control to the host Yielder
//
// CRITICAL PATTERNS:
//
// Determinism:
// Chain seeds come from ChainSeed(BaseSeed, chain), a pure function.
// Same dataset, config and sampler produce bit-identical results.
//
// All-or-nothing:
// A failing chain or a cancellation discards every draw collected so far.
// Run never returns a partial RunResult.
package engine
