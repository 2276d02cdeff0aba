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

// OrganizationRepository handles organization and membership database operations
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository creates a new OrganizationRepository
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create creates a new organization
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	org.ID = uuid.New().String()
	org.CreatedAt = time.Now()
	org.UpdatedAt = time.Now()

	query := `
		INSERT INTO organizations (id, name, slug, description, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.Slug,
		org.Description,
		org.IsActive,
		org.CreatedBy,
		org.CreatedAt,
		org.UpdatedAt,
	)

	return err
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, orgID string) (*models.Organization, error) {
	query := `
		SELECT id, name, slug, description, is_active, created_by, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	org := &models.Organization{}
	err := r.db.GetContext(ctx, org, query, orgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return org, nil
}

// GetBySlug retrieves an organization by its subdomain slug
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	query := `
		SELECT id, name, slug, description, is_active, created_by, created_at, updated_at
		FROM organizations
		WHERE slug = $1
	`

	org := &models.Organization{}
	err := r.db.GetContext(ctx, org, query, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return org, nil
}

// SlugExists reports whether a slug is already taken
func (r *OrganizationRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = $1)`
	err := r.db.GetContext(ctx, &exists, query, slug)
	return exists, err
}

// Update updates an organization's mutable fields
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = time.Now()

	query := `
		UPDATE organizations
		SET name = $2, description = $3, is_active = $4, updated_at = $5
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		org.ID,
		org.Name,
		org.Description,
		org.IsActive,
		org.UpdatedAt,
	)

	return err
}

// Delete deletes an organization (cascades to members and invitations;
// activities keep their rows with organization_id set to NULL)
func (r *OrganizationRepository) Delete(ctx context.Context, orgID string) error {
	query := `DELETE FROM organizations WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, orgID)
	return err
}

// ListByUser retrieves all organizations the user belongs to
func (r *OrganizationRepository) ListByUser(ctx context.Context, userID string) ([]*models.Organization, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.description, o.is_active, o.created_by, o.created_at, o.updated_at
		FROM organizations o
		JOIN organization_members m ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY o.name
	`

	orgs := make([]*models.Organization, 0)
	if err := r.db.SelectContext(ctx, &orgs, query, userID); err != nil {
		return nil, err
	}
	return orgs, nil
}

// ListAll retrieves every organization, newest first. Used by the
// platform admin listing.
func (r *OrganizationRepository) ListAll(ctx context.Context, limit, offset int) ([]*models.Organization, error) {
	query := `
		SELECT id, name, slug, description, is_active, created_by, created_at, updated_at
		FROM organizations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	orgs := make([]*models.Organization, 0)
	if err := r.db.SelectContext(ctx, &orgs, query, limit, offset); err != nil {
		return nil, err
	}
	return orgs, nil
}

// AddMember adds a user to an organization with the given role
func (r *OrganizationRepository) AddMember(ctx context.Context, member *models.OrganizationMember) error {
	member.ID = uuid.New().String()
	member.JoinedAt = time.Now()

	query := `
		INSERT INTO organization_members (id, organization_id, user_id, role, invited_by, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		member.ID,
		member.OrganizationID,
		member.UserID,
		member.Role,
		member.InvitedBy,
		member.JoinedAt,
	)

	return err
}

// GetMember retrieves a membership row, or nil when the user is not a member
func (r *OrganizationRepository) GetMember(ctx context.Context, orgID, userID string) (*models.OrganizationMember, error) {
	query := `
		SELECT id, organization_id, user_id, role, invited_by, joined_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`

	member := &models.OrganizationMember{}
	err := r.db.GetContext(ctx, member, query, orgID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return member, nil
}

// ListMembers retrieves the org roster with profile fields, owners first
func (r *OrganizationRepository) ListMembers(ctx context.Context, orgID string) ([]*models.MemberWithProfile, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.invited_by, m.joined_at,
		       p.email, p.username, p.avatar_url
		FROM organization_members m
		JOIN profiles p ON p.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY CASE m.role WHEN 'owner' THEN 0 WHEN 'admin' THEN 1 ELSE 2 END, m.joined_at
	`

	members := make([]*models.MemberWithProfile, 0)
	if err := r.db.SelectContext(ctx, &members, query, orgID); err != nil {
		return nil, err
	}
	return members, nil
}

// UpdateMemberRole changes a member's role
func (r *OrganizationRepository) UpdateMemberRole(ctx context.Context, orgID, userID, role string) error {
	query := `UPDATE organization_members SET role = $3 WHERE organization_id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, orgID, userID, role)
	return err
}

// RemoveMember removes a user from an organization
func (r *OrganizationRepository) RemoveMember(ctx context.Context, orgID, userID string) error {
	query := `DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, orgID, userID)
	return err
}

// CountOwners returns the number of owners in an organization. The last owner
// cannot leave or be demoted.
func (r *OrganizationRepository) CountOwners(ctx context.Context, orgID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM organization_members WHERE organization_id = $1 AND role = 'owner'`
	err := r.db.GetContext(ctx, &count, query, orgID)
	return count, err
}

// CountMembers returns the number of members in an organization
func (r *OrganizationRepository) CountMembers(ctx context.Context, orgID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM organization_members WHERE organization_id = $1`
	err := r.db.GetContext(ctx, &count, query, orgID)
	return count, err
}
