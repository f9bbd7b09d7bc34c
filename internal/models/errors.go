package models

import "errors"

// Domain error taxonomy. Callers branch on these with errors.Is; the API
// layer maps them to HTTP status codes and the sync engine maps them to
// protocol error frames (or a silent drop, for protocol violations).
var (
	// ErrUnauthorized means no valid identity was presented.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the identity is known but lacks permission.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the referenced document, user, or share link
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrExpired means a share link is past its expiry time.
	ErrExpired = errors.New("link expired")

	// ErrConflict means a uniqueness constraint was violated, e.g.
	// signing up with an email that is already registered.
	ErrConflict = errors.New("already exists")
)
