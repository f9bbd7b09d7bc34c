package collaboration

import (
	"testing"

	"codesync/internal/models"

	"github.com/go-playground/assert/v2"
)

func TestAdmitIsIdempotent(t *testing.T) {
	registry := NewSessionRegistry()
	s := newTestSession("alice")

	registry.Admit("doc_1", s)
	registry.Admit("doc_1", s)

	assert.Equal(t, registry.Count("doc_1"), 1)
}

func TestRemoveEvictsEmptyRoom(t *testing.T) {
	registry := NewSessionRegistry()
	s := newTestSession("alice")

	registry.Admit("doc_1", s)
	registry.SetCursor("doc_1", s, models.CursorPosition{Line: 1, Col: 2})
	registry.Remove("doc_1", s)

	assert.Equal(t, registry.Count("doc_1"), 0)
	registry.mu.RLock()
	_, exists := registry.rooms["doc_1"]
	registry.mu.RUnlock()
	assert.Equal(t, exists, false)

	// Removing from a document with no room is a no-op.
	registry.Remove("doc_1", s)
}

func TestBroadcastExcludesSender(t *testing.T) {
	registry := NewSessionRegistry()
	a := newTestSession("alice")
	b := newTestSession("bob")
	registry.Admit("doc_1", a)
	registry.Admit("doc_1", b)

	registry.Broadcast("doc_1", []byte(`{"type":"userCount","count":2}`), a)

	assert.Equal(t, len(frames(a)), 0)
	assert.Equal(t, len(frames(b)), 1)
}

func TestBroadcastReachesOnlyThatDocument(t *testing.T) {
	registry := NewSessionRegistry()
	a := newTestSession("alice")
	b := newTestSession("bob")
	registry.Admit("doc_1", a)
	registry.Admit("doc_2", b)

	registry.Broadcast("doc_1", []byte(`{"type":"userCount","count":1}`), nil)

	assert.Equal(t, len(frames(a)), 1)
	assert.Equal(t, len(frames(b)), 0)
}

func TestBroadcastSkipsFullBuffers(t *testing.T) {
	registry := NewSessionRegistry()
	a := newTestSession("alice")
	stuck := newTestSession("stuck")
	registry.Admit("doc_1", a)
	registry.Admit("doc_1", stuck)

	for i := 0; i < sendBuffer; i++ {
		stuck.Send <- []byte(`{}`)
	}

	// Must not block or fail for the healthy recipient.
	registry.Broadcast("doc_1", []byte(`{"type":"userCount","count":2}`), nil)

	assert.Equal(t, len(frames(a)), 1)
}

func TestSetCursorIgnoresNonMembers(t *testing.T) {
	registry := NewSessionRegistry()
	member := newTestSession("alice")
	stranger := newTestSession("bob")
	registry.Admit("doc_1", member)

	registry.SetCursor("doc_1", stranger, models.CursorPosition{Line: 1, Col: 1})

	registry.mu.RLock()
	_, tracked := registry.rooms["doc_1"].cursors[stranger]
	registry.mu.RUnlock()
	assert.Equal(t, tracked, false)
}
