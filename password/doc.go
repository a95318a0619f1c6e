// Package password implements password hashing and verification with Argon2id,
// plus the account password policy applied before any hash is produced.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The [Hasher] supports transparent parameter upgrades: if the stored hash was
// produced with weaker parameters, [Hasher.NeedsRehash] returns true so the caller
// can re-hash on the next successful login.
//
// # Policy
//
// [Hasher.Hash] rejects passwords that fail [Validate]: at least 8 characters
// with an upper-case letter, a lower-case letter, a digit, and a special
// character. Failures wrap [ErrPolicy].
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other package in this module.
//   - Log plaintext passwords or hash parameters at runtime.
package password
