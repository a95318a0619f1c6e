package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/initstack/identity"
)

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string    `bun:"id,pk"`
	Username     string    `bun:"username,notnull,unique"`
	Email        string    `bun:"email,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	FirstName    string    `bun:"first_name"`
	LastName     string    `bun:"last_name"`
	IsActive     bool      `bun:"is_active,notnull"`
	DateJoined   time.Time `bun:"date_joined,notnull"`
	LastLogin    time.Time `bun:"last_login"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

func (r *userRow) record() identity.UserRecord {
	return identity.UserRecord{
		Subject:      r.ID,
		Username:     r.Username,
		Email:        r.Email,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		PasswordHash: r.PasswordHash,
		Active:       r.IsActive,
		DateJoined:   r.DateJoined,
		LastLogin:    r.LastLogin,
		UpdatedAt:    r.UpdatedAt,
	}
}

// Users implements [identity.UserStore] over a bun database.
type Users struct {
	db *bun.DB
}

// NewUsers returns a Users adapter. The database handle is owned by the
// caller.
func NewUsers(db *bun.DB) *Users {
	return &Users{db: db}
}

// Migrate creates the users table when missing. Intended for tests and
// development setups; production schemas are managed externally.
func (s *Users) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*userRow)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Create inserts a new account row.
func (s *Users) Create(ctx context.Context, user identity.UserRecord) error {
	row := &userRow{
		ID:           user.Subject,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		IsActive:     user.Active,
		DateJoined:   user.DateJoined,
		LastLogin:    user.LastLogin,
		UpdatedAt:    user.UpdatedAt,
	}

	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return identity.ErrIdentifierTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindBySubject looks an account up by id.
func (s *Users) FindBySubject(ctx context.Context, subject string) (identity.UserRecord, error) {
	row := new(userRow)
	err := s.db.NewSelect().
		Model(row).
		Where("u.id = ?", subject).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.UserRecord{}, identity.ErrUserNotFound
		}
		return identity.UserRecord{}, fmt.Errorf("select user: %w", err)
	}

	return row.record(), nil
}

// FindByIdentifier looks an account up by username or email.
func (s *Users) FindByIdentifier(ctx context.Context, identifier string) (identity.UserRecord, error) {
	row := new(userRow)
	err := s.db.NewSelect().
		Model(row).
		Where("u.username = ?", identifier).
		WhereOr("u.email = ?", identifier).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.UserRecord{}, identity.ErrUserNotFound
		}
		return identity.UserRecord{}, fmt.Errorf("select user: %w", err)
	}

	return row.record(), nil
}

// ConditionalUpdate applies patch iff the row's is_active equals
// expectActive, returning the affected row count.
func (s *Users) ConditionalUpdate(ctx context.Context, subject string, expectActive bool, patch identity.UserPatch) (int64, error) {
	q := s.db.NewUpdate().
		Model((*userRow)(nil)).
		Where("id = ?", subject).
		Where("is_active = ?", expectActive)

	touched := false
	if patch.Username != nil {
		q = q.Set("username = ?", *patch.Username)
		touched = true
	}
	if patch.Email != nil {
		q = q.Set("email = ?", *patch.Email)
		touched = true
	}
	if patch.PasswordHash != nil {
		q = q.Set("password_hash = ?", *patch.PasswordHash)
		touched = true
	}
	if patch.Active != nil {
		q = q.Set("is_active = ?", *patch.Active)
		touched = true
	}
	if patch.LastLogin != nil {
		q = q.Set("last_login = ?", *patch.LastLogin)
		touched = true
	}
	if patch.UpdatedAt != nil {
		q = q.Set("updated_at = ?", *patch.UpdatedAt)
		touched = true
	}
	if !touched {
		return 0, errors.New("empty patch")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, identity.ErrIdentifierTaken
		}
		return 0, fmt.Errorf("update user: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update user: %w", err)
	}

	return rows, nil
}

// Delete removes the account row and reports how many rows went away.
func (s *Users) Delete(ctx context.Context, subject string) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*userRow)(nil)).
		Where("id = ?", subject).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}

	return rows, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
