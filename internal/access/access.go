// Package access computes the effective permission a user holds on a
// document: owner status first, then the share-grant table.
package access

import (
	"context"
	"fmt"

	"codesync/internal/models"
)

// Store is the persistence surface the controller needs. Declared here,
// consumer-side; the gorm repositories satisfy it.
type Store interface {
	GetDocument(ctx context.Context, docID string) (*models.Document, error)
	GetShareGrant(ctx context.Context, docID, userID string) (models.Permission, error)
}

// Controller resolves permissions. It is read-only and safe for
// concurrent use.
type Controller struct {
	store Store
}

// NewController creates a new access controller.
func NewController(store Store) *Controller {
	return &Controller{store: store}
}

// ResolvePermission returns the effective permission userID holds on
// docID:
//
//   - models.ErrNotFound if the document does not exist (the caller may
//     choose to create it with userID as owner),
//   - PermissionOwner if the user owns it,
//   - the grant's permission if one exists,
//   - PermissionNone otherwise.
func (c *Controller) ResolvePermission(ctx context.Context, userID, docID string) (models.Permission, error) {
	doc, err := c.store.GetDocument(ctx, docID)
	if err != nil {
		return models.PermissionNone, err
	}

	if doc.OwnerID == userID {
		return models.PermissionOwner, nil
	}

	perm, err := c.store.GetShareGrant(ctx, docID, userID)
	if err != nil {
		return models.PermissionNone, fmt.Errorf("failed to resolve permission: %w", err)
	}

	return perm, nil
}
