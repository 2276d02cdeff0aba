// Package repositories implements the data access layer (repository pattern) for the
// 30x30 Challenge backend. Each repository type encapsulates all database queries for
// a domain entity. Handlers never issue SQL directly; all database access goes through
// this layer, which keeps query logic testable in isolation.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/thirtyx30/thirtyx30/internal/db/models"
)

// ProfileRepository handles profile database operations
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create creates a new profile
func (r *ProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	profile.ID = uuid.New().String()
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = time.Now()

	query := `
		INSERT INTO profiles (id, email, username, avatar_url, is_public, is_platform_admin, oidc_sub, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		profile.ID,
		profile.Email,
		profile.Username,
		profile.AvatarURL,
		profile.IsPublic,
		profile.IsPlatformAdmin,
		profile.OIDCSub,
		profile.CreatedAt,
		profile.UpdatedAt,
	)

	return err
}

// GetByID retrieves a profile by ID
func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (*models.Profile, error) {
	query := `
		SELECT id, email, username, avatar_url, is_public, is_platform_admin, oidc_sub, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	profile := &models.Profile{}
	err := r.db.GetContext(ctx, profile, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// GetByEmail retrieves a profile by email
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	query := `
		SELECT id, email, username, avatar_url, is_public, is_platform_admin, oidc_sub, created_at, updated_at
		FROM profiles
		WHERE email = $1
	`

	profile := &models.Profile{}
	err := r.db.GetContext(ctx, profile, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// GetByOIDCSub retrieves a profile by OIDC subject identifier
func (r *ProfileRepository) GetByOIDCSub(ctx context.Context, oidcSub string) (*models.Profile, error) {
	query := `
		SELECT id, email, username, avatar_url, is_public, is_platform_admin, oidc_sub, created_at, updated_at
		FROM profiles
		WHERE oidc_sub = $1
	`

	profile := &models.Profile{}
	err := r.db.GetContext(ctx, profile, query, oidcSub)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// Update updates a profile's mutable fields
func (r *ProfileRepository) Update(ctx context.Context, profile *models.Profile) error {
	profile.UpdatedAt = time.Now()

	query := `
		UPDATE profiles
		SET email = $2, username = $3, avatar_url = $4, is_public = $5, updated_at = $6
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		profile.ID,
		profile.Email,
		profile.Username,
		profile.AvatarURL,
		profile.IsPublic,
		profile.UpdatedAt,
	)

	return err
}

// UpdateAvatarURL sets only the avatar URL
func (r *ProfileRepository) UpdateAvatarURL(ctx context.Context, userID, avatarURL string) error {
	query := `UPDATE profiles SET avatar_url = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, avatarURL, time.Now())
	return err
}

// GetOrCreateFromOIDC gets or creates a profile from OIDC authentication.
// The OIDC subject is the stable key; email is refreshed if the identity
// provider reports a new one.
func (r *ProfileRepository) GetOrCreateFromOIDC(ctx context.Context, oidcSub, email string) (*models.Profile, error) {
	profile, err := r.GetByOIDCSub(ctx, oidcSub)
	if err != nil {
		return nil, err
	}

	if profile != nil {
		if profile.Email != email {
			profile.Email = email
			if err := r.Update(ctx, profile); err != nil {
				return nil, err
			}
		}
		return profile, nil
	}

	newProfile := &models.Profile{
		Email:   email,
		OIDCSub: &oidcSub,
	}
	if err := r.Create(ctx, newProfile); err != nil {
		return nil, err
	}

	return newProfile, nil
}

// Delete deletes a profile (cascades to activities, streaks, memberships,
// and provider connections)
func (r *ProfileRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM profiles WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}
