package models

import "time"

// Permission is the effective access level a user has on a document.
type Permission string

const (
	// PermissionOwner is implicit: the document's owner needs no grant
	// and a grant can never demote them.
	PermissionOwner Permission = "owner"

	// PermissionEdit allows reading and writing document content.
	PermissionEdit Permission = "edit"

	// PermissionView allows reading only.
	PermissionView Permission = "view"

	// PermissionNone means no access.
	PermissionNone Permission = ""
)

// CanEdit reports whether the permission allows mutating content.
func (p Permission) CanEdit() bool {
	return p == PermissionOwner || p == PermissionEdit
}

// ValidGrant reports whether the permission may be stored in a grant or
// share link. Owner is implicit and none is expressed by a missing row,
// so only edit and view are storable.
func (p Permission) ValidGrant() bool {
	return p == PermissionEdit || p == PermissionView
}

// ShareGrant gives a non-owner user a permission on a document. At most
// one grant exists per (document, user) pair; re-granting overwrites.
type ShareGrant struct {
	DocID      string     `json:"doc_id" gorm:"type:text;primaryKey"`
	UserID     string     `json:"user_id" gorm:"type:char(27);primaryKey;index"`
	Permission Permission `json:"permission" gorm:"type:varchar(10);not null"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// GrantInfo is a grant joined with the grantee's email, for the owner's
// sharing dialog.
type GrantInfo struct {
	Email      string     `json:"email"`
	Permission Permission `json:"permission"`
}

// ShareLink is a bearer token redeemable by any authenticated user for a
// grant on a document. Links are multi-use and survive redemption; only
// expiry invalidates them.
type ShareLink struct {
	Token      string     `json:"token" gorm:"type:text;primaryKey"`
	DocID      string     `json:"doc_id" gorm:"type:text;not null;index"`
	Permission Permission `json:"permission" gorm:"type:varchar(10);not null"`
	CreatedBy  string     `json:"created_by" gorm:"type:char(27);not null"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the link's expiry, if any, has passed.
func (l *ShareLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}
