// Package errors provides the classified error primitives used across Scriptorium.
//
// Every failure surfaced to an operator carries a category that decides how it is
// handled:
//   - config, validation: fatal, reported before any compilation work begins
//   - structure: tolerated document problems that were repaired
//   - transport: retried a bounded number of times
//   - publish: transport retries exhausted for one record, run aborted
//   - relay_rejection: the relay refused a record, never retried
//   - verification, reconcile: the relay does not show what was sent; re-run qc
//
// Example usage:
//
//	err := errors.TransportError("relay did not acknowledge event").
//		WithCause(ioErr).
//		WithContext("relay", url).
//		Build()
package errors
