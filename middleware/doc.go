// Package middleware exposes the HTTP adapter for access-token enforcement
// built on top of identity.Engine verification.
//
// [RequireAccess] reads the Authorization bearer token, calls
// Engine.VerifyAccess, and injects the authenticated account into the
// request context, where handlers retrieve it with [UserFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// Engine.VerifyAccess.
package middleware
