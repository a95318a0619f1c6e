package store

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type profileRow struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	UserID    string    `bun:"user_id,pk"`
	Bio       string    `bun:"bio"`
	AvatarKey string    `bun:"avatar_key"`
	UpdatedAt time.Time `bun:"updated_at"`
}

// Profiles implements [identity.ProfileStore] over a bun database.
type Profiles struct {
	db *bun.DB
}

func NewProfiles(db *bun.DB) *Profiles {
	return &Profiles{db: db}
}

// Migrate creates the profiles table when missing.
func (s *Profiles) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*profileRow)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// DeleteProfile removes the profile row for subject. Deleting an absent
// profile is not an error: the cleanup task is delivered at-least-once.
func (s *Profiles) DeleteProfile(ctx context.Context, subject string) error {
	_, err := s.db.NewDelete().
		Model((*profileRow)(nil)).
		Where("user_id = ?", subject).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
