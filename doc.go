// Package identity provides a token-driven account lifecycle engine: signed
// single-purpose tokens mint, cache, verify, and revoke their way through
// registration, activation, login, deactivation, deletion, password reset,
// and username/email changes.
//
// Every sensitive transition follows the same shape: an initiate call mints
// (or reuses) a short-lived signed token bound to one subject and one
// purpose, caches it in Redis as the single live token for that
// (class, subject) pair, and dispatches it out of band; a confirm call
// verifies the presented token cryptographically AND against the cached
// copy, applies the state change exactly once, then deletes the cache entry
// so the token can never be replayed.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// identity is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces ([UserStore], [Notifier], [TaskQueue],
// [AuditSink]), and value types. Token signing lives in the token
// sub-package, liveness in cache, hashing in password, persistence adapters
// in store, and background work in queue.
//
// # What this package must NOT do
//
//   - Expose Redis clients or signing material in its public API.
//   - Distinguish token failure causes to callers (everything is
//     [ErrInvalidToken]).
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//
// # Concurrency contract
//
// Concurrent confirms for the same token race on the conditional state
// update: exactly one caller observes the transition, the rest get
// [ErrAlreadyInTargetState]. Concurrent initiates for the same pair are
// last-writer-wins in the cache; only the last-written token confirms.
package identity
