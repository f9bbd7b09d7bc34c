package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codesync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepositoryImpl handles all database operations for documents
// using GORM. It is the durable half of the sync engine's store boundary:
// the engine only ever reads a consistent snapshot or replaces the content
// wholesale.
type DocumentRepositoryImpl struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db *gorm.DB) *DocumentRepositoryImpl {
	return &DocumentRepositoryImpl{db: db}
}

// GetDocument retrieves a document by its client-chosen id. Returns
// models.ErrNotFound if it does not exist.
func (r *DocumentRepositoryImpl) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document

	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// CreateDocumentIfAbsent inserts a fresh empty document owned by ownerID,
// or leaves an existing row untouched. This is the only path that assigns
// ownership, so an insert that loses a race keeps the first writer's owner.
// The current row is returned either way.
func (r *DocumentRepositoryImpl) CreateDocumentIfAbsent(ctx context.Context, id, ownerID, title string) (*models.Document, error) {
	if title == "" {
		title = models.DefaultTitle
	}

	doc := &models.Document{
		ID:       id,
		OwnerID:  ownerID,
		Title:    title,
		Code:     "",
		Language: models.DefaultLanguage,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(doc).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	// Re-read so a lost race still returns the authoritative row.
	return r.GetDocument(ctx, id)
}

// UpdateDocumentContent replaces the document's content and language.
// Last-write-wins: no merging, the new content fully overwrites.
func (r *DocumentRepositoryImpl) UpdateDocumentContent(ctx context.Context, id, code, language string) error {
	if language == "" {
		language = models.DefaultLanguage
	}

	result := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"code":       code,
			"language":   language,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update document content: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Rename changes the title of a document owned by ownerID. The ownership
// check rides in the WHERE clause so a non-owner simply matches no rows.
func (r *DocumentRepositoryImpl) Rename(ctx context.Context, id, ownerID, title string) error {
	if title == "" {
		title = models.DefaultTitle
	}

	result := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]any{
			"title":      title,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to rename document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Delete removes a document owned by ownerID, along with its grants and
// share links.
func (r *DocumentRepositoryImpl) Delete(ctx context.Context, id, ownerID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND owner_id = ?", id, ownerID).
			Delete(&models.Document{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete document: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return models.ErrNotFound
		}

		if err := tx.Where("doc_id = ?", id).Delete(&models.ShareGrant{}).Error; err != nil {
			return fmt.Errorf("failed to delete grants: %w", err)
		}
		if err := tx.Where("doc_id = ?", id).Delete(&models.ShareLink{}).Error; err != nil {
			return fmt.Errorf("failed to delete share links: %w", err)
		}
		return nil
	})
}

// ListOwned returns the documents owned by userID, most recently edited
// first.
func (r *DocumentRepositoryImpl) ListOwned(ctx context.Context, userID string) ([]models.DocumentSummary, error) {
	var rows []models.DocumentSummary

	err := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Select("id, title, updated_at AS last_edited").
		Where("owner_id = ?", userID).
		Order("updated_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list owned documents: %w", err)
	}

	return rows, nil
}

// ListSharedWith returns the documents shared with userID, joined with the
// owner's email and the grant's permission.
func (r *DocumentRepositoryImpl) ListSharedWith(ctx context.Context, userID string) ([]models.DocumentSummary, error) {
	var rows []models.DocumentSummary

	err := r.db.WithContext(ctx).
		Model(&models.ShareGrant{}).
		Select("documents.id, documents.title, documents.updated_at AS last_edited, users.email AS owner_email, share_grants.permission").
		Joins("JOIN documents ON documents.id = share_grants.doc_id").
		Joins("JOIN users ON users.id = documents.owner_id").
		Where("share_grants.user_id = ?", userID).
		Order("documents.updated_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list shared documents: %w", err)
	}

	return rows, nil
}
