// Package retry provides the two waiting primitives used across the
// codebase: exponential backoff for transient API failures
// ([WithExponentialBackoff]) and a fixed-interval convergence poller with a
// wall-clock timeout ([Until]).
package retry
