// Package store provides the bun-backed persistence adapters consumed by
// the engine: account rows behind the UserStore contract and profile rows
// behind ProfileStore.
//
// Single-use semantics in the engine lean on ConditionalUpdate: every state
// transition is an UPDATE guarded by the expected current active flag, so
// of two racing confirms exactly one changes a row and the other observes
// zero rows affected.
package store
