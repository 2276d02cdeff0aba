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

// ConnectionRepository handles provider connection database operations.
// Token values are stored as ciphertext; callers encrypt before Upsert and
// decrypt after load.
type ConnectionRepository struct {
	db *sqlx.DB
}

// NewConnectionRepository creates a new ConnectionRepository
func NewConnectionRepository(db *sqlx.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Upsert creates or replaces the user's connection to a provider. Reconnecting
// overwrites stale tokens from an earlier authorization.
func (r *ConnectionRepository) Upsert(ctx context.Context, conn *models.ProviderConnection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	conn.UpdatedAt = time.Now()

	query := `
		INSERT INTO provider_connections (id, user_id, provider, provider_user_id,
		                                  access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), $8)
		ON CONFLICT (user_id, provider)
		DO UPDATE SET provider_user_id = EXCLUDED.provider_user_id,
		              access_token = EXCLUDED.access_token,
		              refresh_token = EXCLUDED.refresh_token,
		              expires_at = EXCLUDED.expires_at,
		              updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		conn.ID,
		conn.UserID,
		conn.Provider,
		conn.ProviderUserID,
		conn.AccessToken,
		conn.RefreshToken,
		conn.ExpiresAt,
		conn.UpdatedAt,
	)

	return err
}

// GetByUserProvider retrieves a user's connection to one provider, or nil
func (r *ConnectionRepository) GetByUserProvider(ctx context.Context, userID, provider string) (*models.ProviderConnection, error) {
	query := `
		SELECT id, user_id, provider, provider_user_id, access_token, refresh_token,
		       expires_at, created_at, updated_at
		FROM provider_connections
		WHERE user_id = $1 AND provider = $2
	`

	conn := &models.ProviderConnection{}
	err := r.db.GetContext(ctx, conn, query, userID, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// GetByProviderUserID resolves an inbound webhook's provider-side user id to a
// stored connection, or nil when no local user is linked
func (r *ConnectionRepository) GetByProviderUserID(ctx context.Context, provider, providerUserID string) (*models.ProviderConnection, error) {
	query := `
		SELECT id, user_id, provider, provider_user_id, access_token, refresh_token,
		       expires_at, created_at, updated_at
		FROM provider_connections
		WHERE provider = $1 AND provider_user_id = $2
	`

	conn := &models.ProviderConnection{}
	err := r.db.GetContext(ctx, conn, query, provider, providerUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// ListByUser retrieves all of a user's provider connections
func (r *ConnectionRepository) ListByUser(ctx context.Context, userID string) ([]*models.ProviderConnection, error) {
	query := `
		SELECT id, user_id, provider, provider_user_id, access_token, refresh_token,
		       expires_at, created_at, updated_at
		FROM provider_connections
		WHERE user_id = $1
		ORDER BY provider
	`

	conns := make([]*models.ProviderConnection, 0)
	if err := r.db.SelectContext(ctx, &conns, query, userID); err != nil {
		return nil, err
	}
	return conns, nil
}

// ListAll retrieves every provider connection, oldest-synced first. Used by
// the background sync job to walk all linked accounts.
func (r *ConnectionRepository) ListAll(ctx context.Context) ([]*models.ProviderConnection, error) {
	query := `
		SELECT id, user_id, provider, provider_user_id, access_token, refresh_token,
		       expires_at, created_at, updated_at
		FROM provider_connections
		ORDER BY updated_at
	`

	conns := make([]*models.ProviderConnection, 0)
	if err := r.db.SelectContext(ctx, &conns, query); err != nil {
		return nil, err
	}
	return conns, nil
}

// UpdateTokens stores refreshed token material for an existing connection
func (r *ConnectionRepository) UpdateTokens(ctx context.Context, connID, accessToken, refreshToken string, expiresAt int64) error {
	query := `
		UPDATE provider_connections
		SET access_token = $2, refresh_token = $3, expires_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, connID, accessToken, refreshToken, expiresAt)
	return err
}

// Delete removes a user's connection to a provider. Previously ingested
// activities are kept.
func (r *ConnectionRepository) Delete(ctx context.Context, userID, provider string) (bool, error) {
	query := `DELETE FROM provider_connections WHERE user_id = $1 AND provider = $2`
	result, err := r.db.ExecContext(ctx, query, userID, provider)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
