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

// InvitationRepository handles organization invitation database operations
type InvitationRepository struct {
	db *sqlx.DB
}

// NewInvitationRepository creates a new InvitationRepository
func NewInvitationRepository(db *sqlx.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create creates a new invitation
func (r *InvitationRepository) Create(ctx context.Context, inv *models.OrganizationInvitation) error {
	inv.ID = uuid.New().String()
	inv.CreatedAt = time.Now()

	query := `
		INSERT INTO organization_invitations (id, organization_id, email, role, invited_by, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		inv.ID,
		inv.OrganizationID,
		inv.Email,
		inv.Role,
		inv.InvitedBy,
		inv.Token,
		inv.ExpiresAt,
		inv.CreatedAt,
	)

	return err
}

// GetByToken retrieves an invitation by its opaque token
func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*models.OrganizationInvitation, error) {
	query := `
		SELECT id, organization_id, email, role, invited_by, token, expires_at, accepted_at, created_at
		FROM organization_invitations
		WHERE token = $1
	`

	inv := &models.OrganizationInvitation{}
	err := r.db.GetContext(ctx, inv, query, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return inv, nil
}

// GetPendingByEmail retrieves a pending (unaccepted, unexpired) invitation for
// an email address in an organization, or nil
func (r *InvitationRepository) GetPendingByEmail(ctx context.Context, orgID, email string) (*models.OrganizationInvitation, error) {
	query := `
		SELECT id, organization_id, email, role, invited_by, token, expires_at, accepted_at, created_at
		FROM organization_invitations
		WHERE organization_id = $1 AND lower(email) = lower($2)
		  AND accepted_at IS NULL AND expires_at > NOW()
	`

	inv := &models.OrganizationInvitation{}
	err := r.db.GetContext(ctx, inv, query, orgID, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return inv, nil
}

// ListByOrganization retrieves all invitations for an organization, newest first
func (r *InvitationRepository) ListByOrganization(ctx context.Context, orgID string) ([]*models.OrganizationInvitation, error) {
	query := `
		SELECT id, organization_id, email, role, invited_by, token, expires_at, accepted_at, created_at
		FROM organization_invitations
		WHERE organization_id = $1
		ORDER BY created_at DESC
	`

	invs := make([]*models.OrganizationInvitation, 0)
	if err := r.db.SelectContext(ctx, &invs, query, orgID); err != nil {
		return nil, err
	}
	return invs, nil
}

// MarkAccepted records acceptance, but only if the invitation is still pending.
// Returns false when the token was already used or has expired, which keeps
// acceptance single-use under concurrent requests.
func (r *InvitationRepository) MarkAccepted(ctx context.Context, invitationID string) (bool, error) {
	query := `
		UPDATE organization_invitations
		SET accepted_at = NOW()
		WHERE id = $1 AND accepted_at IS NULL AND expires_at > NOW()
	`

	result, err := r.db.ExecContext(ctx, query, invitationID)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

// Delete revokes an invitation. Scoped to the organization so one org cannot
// revoke another's invitations by id. Returns whether a row was deleted.
func (r *InvitationRepository) Delete(ctx context.Context, orgID, invitationID string) (bool, error) {
	query := `DELETE FROM organization_invitations WHERE id = $1 AND organization_id = $2`
	result, err := r.db.ExecContext(ctx, query, invitationID, orgID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// DeleteExpired removes expired, unaccepted invitations and returns how many
// were deleted
func (r *InvitationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM organization_invitations WHERE accepted_at IS NULL AND expires_at <= NOW()`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
