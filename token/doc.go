// Package token implements the signed-token codec shared by every account
// lifecycle flow: activation, access, refresh, deactivation, deletion,
// password reset, username update, and email update.
//
// # Model
//
// Each token class is an independent channel with its own signing secret and
// TTL. A token proves that its subject requested the operation named by its
// class; it carries no authorization data beyond the subject id and, for
// email updates, the pending address. The codec only proves cryptographic
// authenticity and freshness: whether a token is still the live token for
// its (class, subject) pair is decided by the cache layer, not here.
//
// # Verification
//
//   - Signature must verify under the class secret with the configured method.
//   - Issuer and audience must match exactly: a single audience entry equal
//     to the configured value. A token listing extra audiences is rejected.
//   - exp is required and must be in the future; iat is required.
//   - Subject must be non-empty.
//
// Every verification failure collapses into [ErrInvalid]. Callers never learn
// whether a token was expired, tampered with, or minted for another class.
//
// # What this package must NOT do
//
//   - Touch Redis or any store (the cache package owns liveness).
//   - Log token material.
//   - Distinguish failure causes to callers.
package token
