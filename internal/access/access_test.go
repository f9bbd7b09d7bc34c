package access

import (
	"context"
	"testing"

	"codesync/internal/models"

	"github.com/go-playground/assert/v2"
)

type fakeStore struct {
	docs   map[string]*models.Document
	grants map[string]models.Permission
}

func (f *fakeStore) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	doc, ok := f.docs[docID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) GetShareGrant(ctx context.Context, docID, userID string) (models.Permission, error) {
	return f.grants[docID+"/"+userID], nil
}

func TestResolvePermission(t *testing.T) {
	store := &fakeStore{
		docs: map[string]*models.Document{
			"doc_1": {ID: "doc_1", OwnerID: "alice"},
		},
		grants: map[string]models.Permission{
			"doc_1/bob":   models.PermissionEdit,
			"doc_1/carol": models.PermissionView,
			// A grant on the owner must never matter: owner wins.
			"doc_1/alice": models.PermissionView,
		},
	}
	ctl := NewController(store)
	ctx := context.Background()

	tests := []struct {
		name   string
		userID string
		docID  string
		want   models.Permission
		err    error
	}{
		{"owner", "alice", "doc_1", models.PermissionOwner, nil},
		{"edit grant", "bob", "doc_1", models.PermissionEdit, nil},
		{"view grant", "carol", "doc_1", models.PermissionView, nil},
		{"no grant", "mallory", "doc_1", models.PermissionNone, nil},
		{"missing document", "alice", "doc_404", models.PermissionNone, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perm, err := ctl.ResolvePermission(ctx, tt.userID, tt.docID)
			assert.Equal(t, perm, tt.want)
			assert.Equal(t, err, tt.err)
		})
	}
}
