package models

import "time"

// Defaults applied when a document is created lazily on first join or
// without an explicit title/language.
const (
	DefaultTitle    = "Untitled document"
	DefaultLanguage = "javascript"
)

// Document is a collaboratively edited text document. The id is chosen by
// the client (the editor generates one per document tab), so it is the
// primary key directly rather than a generated id.
//
// Code is replaced wholesale by each accepted edit (last-write-wins);
// there is no version history. OwnerID is set once, either by the first
// joiner or by an explicit create, and never changes.
type Document struct {
	ID        string    `json:"id" gorm:"type:text;primaryKey"`
	OwnerID   string    `json:"owner_id" gorm:"type:char(27);not null;index"`
	Title     string    `json:"title" gorm:"type:text;not null"`
	Code      string    `json:"code" gorm:"type:text;not null"`
	Language  string    `json:"language" gorm:"type:text;not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime;index"`
}

// DocumentSummary is a listing row for the home screen. Owned documents
// carry no permission or owner email; shared ones carry the grant's
// permission and the owner's email.
type DocumentSummary struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	LastEdited time.Time  `json:"lastEdited"`
	OwnerEmail string     `json:"ownerEmail,omitempty"`
	Permission Permission `json:"permission,omitempty"`
}
