package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Session is the ephemeral record of one WebSocket connection. It is never
// persisted; it exists from connection open to disconnect.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// CursorPosition is where a user's cursor is in the document. Ephemeral
// presence state, relayed but never stored.
type CursorPosition struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

func NewSession(userID, email string) *Session {
	now := time.Now()
	return &Session{
		ID:           ksuid.New().String(),
		UserID:       userID,
		Email:        email,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}
