package identity

import (
	"context"
	"time"
)

// UserRecord is the engine's view of one account. Subject is the stable
// opaque id carried in token sub claims; Username and Email are mutable
// login identifiers.
type UserRecord struct {
	Subject      string
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Active       bool
	DateJoined   time.Time
	LastLogin    time.Time
	UpdatedAt    time.Time
}

// UserPatch describes a partial account update. Nil fields are untouched.
type UserPatch struct {
	Username     *string
	Email        *string
	PasswordHash *string
	Active       *bool
	LastLogin    *time.Time
	UpdatedAt    *time.Time
}

// UserStore is the persistence boundary for accounts.
//
// Contract: FindBySubject and FindByIdentifier return [ErrUserNotFound]
// when no row matches; Create returns [ErrIdentifierTaken] on a username
// or email collision. Any other failure is reported as-is and wrapped by
// the engine as [ErrPersistence].
type UserStore interface {
	// Create inserts a new account.
	Create(ctx context.Context, user UserRecord) error

	// FindBySubject looks an account up by its stable subject id.
	FindBySubject(ctx context.Context, subject string) (UserRecord, error)

	// FindByIdentifier looks an account up by username or email.
	FindByIdentifier(ctx context.Context, identifier string) (UserRecord, error)

	// ConditionalUpdate applies patch to the account iff its current
	// active flag equals expectActive, and returns the number of rows
	// changed. Zero rows means another writer got there first.
	ConditionalUpdate(ctx context.Context, subject string, expectActive bool, patch UserPatch) (int64, error)

	// Delete removes the account row and returns the number of rows
	// removed.
	Delete(ctx context.Context, subject string) (int64, error)
}

// ProfileStore removes the profile data attached to an account. Called from
// the background cleanup task, not from interactive flows.
type ProfileStore interface {
	DeleteProfile(ctx context.Context, subject string) error
}

// Notification is one out-of-band message, usually email. Context carries
// template variables such as the confirmation link.
type Notification struct {
	To       string
	Subject  string
	Template string
	Context  map[string]string
}

// Notifier delivers notifications. Initiate flows treat delivery failure
// as fatal (the message carries the token); confirm flows log and move on.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NoopNotifier discards every notification. Useful in tests and for
// deployments that deliver tokens through another channel.
type NoopNotifier struct{}

// Send implements [Notifier].
func (NoopNotifier) Send(ctx context.Context, n Notification) error { return nil }

// TaskQueue enqueues background work, such as profile cleanup after
// account deletion.
type TaskQueue interface {
	Enqueue(ctx context.Context, name string, payload any) error
}

// RegisterInput is the payload for [Engine.Register].
type RegisterInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// LoginResult is the payload returned by [Engine.Login].
type LoginResult struct {
	User             UserRecord
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  time.Duration
	RefreshExpiresIn time.Duration
}
