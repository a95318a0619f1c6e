package identity

import (
	"errors"
	"net/http"

	"github.com/initstack/identity/password"
)

var (
	// ErrInvalidToken is the single failure for every unusable token:
	// bad signature, expired, wrong class, revoked, or already consumed.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidCredentials reports a failed password check at login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotActivated reports a login against an account that never
	// completed activation.
	ErrNotActivated = errors.New("account not activated")
	// ErrUserNotFound reports that no account exists for the subject or
	// identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyInTargetState reports a confirm against an account that
	// already holds the flow's target state.
	ErrAlreadyInTargetState = errors.New("account already in target state")
	// ErrIdentifierTaken reports a username or email already claimed by
	// another account.
	ErrIdentifierTaken = errors.New("username or email already taken")
	// ErrPersistence wraps store, cache, and queue infrastructure
	// failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrNotification wraps delivery failures on initiate paths, where
	// the notification carries the token and is load-bearing.
	ErrNotification = errors.New("notification dispatch failed")
	// ErrEngineNotReady reports use of an Engine that was not produced
	// by [Builder.Build].
	ErrEngineNotReady = errors.New("engine not initialized")
)

// HTTPStatus maps engine errors onto transport status codes. Unknown errors
// map to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrNotActivated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyInTargetState),
		errors.Is(err, ErrIdentifierTaken):
		return http.StatusConflict
	case errors.Is(err, password.ErrPolicy):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
