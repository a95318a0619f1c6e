// Package cache stores the single live token per (class, subject) pair in
// Redis and serves as the revocation oracle for the whole engine.
//
// A token is usable only while the cache holds a byte-identical copy under
// its class key. Overwriting the entry revokes the previous token even if it
// has not expired; deleting the entry (confirm, logout) revokes outright.
// Entries carry the class TTL so abandoned flows clean themselves up.
//
// Keys follow the fixed scheme "{class}_token:{subject}", e.g.
// "activation_token:42".
package cache
