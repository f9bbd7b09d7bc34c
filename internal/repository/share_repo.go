package repository

import (
	"context"
	"errors"
	"fmt"

	"codesync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShareRepositoryImpl handles the durable share-grant and share-link
// tables using GORM.
type ShareRepositoryImpl struct {
	db *gorm.DB
}

// NewShareRepository creates a new share repository.
func NewShareRepository(db *gorm.DB) *ShareRepositoryImpl {
	return &ShareRepositoryImpl{db: db}
}

// GetShareGrant returns the permission granted to userID on docID, or
// models.PermissionNone with no error when no grant exists. Absence is
// normal, not an error: it just means no access.
func (r *ShareRepositoryImpl) GetShareGrant(ctx context.Context, docID, userID string) (models.Permission, error) {
	var grant models.ShareGrant

	err := r.db.WithContext(ctx).
		First(&grant, "doc_id = ? AND user_id = ?", docID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PermissionNone, nil
	}
	if err != nil {
		return models.PermissionNone, fmt.Errorf("failed to get share grant: %w", err)
	}

	return grant.Permission, nil
}

// UpsertShareGrant creates or overwrites the grant for (docID, userID).
// One row per pair: re-granting replaces the permission.
func (r *ShareRepositoryImpl) UpsertShareGrant(ctx context.Context, docID, userID string, permission models.Permission) error {
	grant := &models.ShareGrant{
		DocID:      docID,
		UserID:     userID,
		Permission: permission,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "doc_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"permission"}),
		}).
		Create(grant).Error
	if err != nil {
		return fmt.Errorf("failed to upsert share grant: %w", err)
	}

	return nil
}

// DeleteShareGrant revokes userID's grant on docID. Deleting a grant that
// does not exist is a no-op.
func (r *ShareRepositoryImpl) DeleteShareGrant(ctx context.Context, docID, userID string) error {
	err := r.db.WithContext(ctx).
		Where("doc_id = ? AND user_id = ?", docID, userID).
		Delete(&models.ShareGrant{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete share grant: %w", err)
	}

	return nil
}

// ListGrants returns the grantees of a document with their emails, ordered
// by email for a stable sharing dialog.
func (r *ShareRepositoryImpl) ListGrants(ctx context.Context, docID string) ([]models.GrantInfo, error) {
	var rows []models.GrantInfo

	err := r.db.WithContext(ctx).
		Model(&models.ShareGrant{}).
		Select("users.email, share_grants.permission").
		Joins("JOIN users ON users.id = share_grants.user_id").
		Where("share_grants.doc_id = ?", docID).
		Order("users.email ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}

	return rows, nil
}

// CreateShareLink persists a new link token.
func (r *ShareRepositoryImpl) CreateShareLink(ctx context.Context, link *models.ShareLink) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return fmt.Errorf("failed to create share link: %w", err)
	}

	return nil
}

// GetShareLink looks up a link by token. Returns models.ErrNotFound for
// unknown tokens.
func (r *ShareRepositoryImpl) GetShareLink(ctx context.Context, token string) (*models.ShareLink, error) {
	var link models.ShareLink

	err := r.db.WithContext(ctx).First(&link, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share link: %w", err)
	}

	return &link, nil
}
