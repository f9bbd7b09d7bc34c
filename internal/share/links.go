// Package share issues and redeems bearer-token share links.
package share

import (
	"context"
	"fmt"
	"time"

	"codesync/internal/access"
	"codesync/internal/models"

	"github.com/segmentio/ksuid"
)

// Store is the persistence surface the link manager needs.
type Store interface {
	GetDocument(ctx context.Context, docID string) (*models.Document, error)
	UpsertShareGrant(ctx context.Context, docID, userID string, permission models.Permission) error
	CreateShareLink(ctx context.Context, link *models.ShareLink) error
	GetShareLink(ctx context.Context, token string) (*models.ShareLink, error)
}

// Manager issues and redeems share links.
type Manager struct {
	store  Store
	access *access.Controller
	now    func() time.Time
}

// NewManager creates a new share-link manager.
func NewManager(store Store, accessCtl *access.Controller) *Manager {
	return &Manager{
		store:  store,
		access: accessCtl,
		now:    time.Now,
	}
}

// CreateLink mints a link token granting permission on docID. Only the
// owner or an edit-permission holder may create links; a view-only holder
// is rejected so a link can never grant more than its creator has. A zero
// ttl means the link never expires.
//
// Tokens are KSUIDs: 128 random bits behind a time prefix, which is
// plenty of entropy for a bearer token.
func (m *Manager) CreateLink(ctx context.Context, requesterID, docID string, permission models.Permission, ttl time.Duration) (string, error) {
	if !permission.ValidGrant() {
		permission = models.PermissionEdit
	}

	requesterPerm, err := m.access.ResolvePermission(ctx, requesterID, docID)
	if err != nil {
		return "", err
	}
	if !requesterPerm.CanEdit() {
		return "", models.ErrForbidden
	}

	link := &models.ShareLink{
		Token:      ksuid.New().String(),
		DocID:      docID,
		Permission: permission,
		CreatedBy:  requesterID,
	}
	if ttl > 0 {
		expires := m.now().Add(ttl)
		link.ExpiresAt = &expires
	}

	if err := m.store.CreateShareLink(ctx, link); err != nil {
		return "", fmt.Errorf("failed to persist share link: %w", err)
	}

	return link.Token, nil
}

// RedeemLink exchanges a token for a grant and returns the document id to
// navigate to. Links are multi-use: redemption never consumes them, only
// expiry ends their life. The document's owner redeems as a no-op, since
// owner access is never grant-based.
func (m *Manager) RedeemLink(ctx context.Context, userID, token string) (string, error) {
	link, err := m.store.GetShareLink(ctx, token)
	if err != nil {
		return "", err
	}

	if link.Expired(m.now()) {
		return "", models.ErrExpired
	}

	doc, err := m.store.GetDocument(ctx, link.DocID)
	if err != nil {
		return "", err
	}

	if doc.OwnerID == userID {
		return doc.ID, nil
	}

	if err := m.store.UpsertShareGrant(ctx, link.DocID, userID, link.Permission); err != nil {
		return "", fmt.Errorf("failed to apply share link: %w", err)
	}

	return doc.ID, nil
}
