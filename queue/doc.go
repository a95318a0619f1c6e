// Package queue implements the background task queue used for deferred
// cleanup work, most notably profile deletion after an account is removed.
//
// Tasks are JSON envelopes pushed onto a Redis list. A [Worker] pops tasks
// with BRPOP, dispatches them to registered handlers, and re-enqueues
// failures with an attempt counter until [Config.MaxAttempts] is exhausted,
// after which the task is dropped and counted.
//
// Delivery is at-least-once: handlers must tolerate replays.
package queue
