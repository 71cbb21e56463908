// Package reliability provides the retry machinery used by the stage
// executor.
//
// A RetryPolicy bounds how often a failing source/sink/transform call is
// reattempted and how long to wait in between. Two curves are provided:
//   - FixedDelay: constant wait between attempts
//   - ExponentialBackoff: multiplicative wait with a cap and optional jitter
//
// Errors may opt out of retrying by implementing IsTransient() bool; unknown
// errors are treated as transient. Rule gate failures never pass through this
// package: they are deterministic for a given context and retrying them
// cannot change the outcome.
package reliability
