// Package ident computes content-addressed identities for runs, datasets
// and draw sequences, and generates run IDs.
//
// A run's key is a pure function of its inputs. Its draws digest is a
// pure function of its outputs. Replay compares the two: same key must
// mean same digest.
package ident
