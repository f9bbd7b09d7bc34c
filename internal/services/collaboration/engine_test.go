package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"codesync/internal/access"
	"codesync/internal/models"

	"github.com/go-playground/assert/v2"
)

// memStore is an in-memory stand-in for the gorm repositories. It
// satisfies both the engine's DocumentStore and the access controller's
// Store.
type memStore struct {
	mu         sync.Mutex
	docs       map[string]*models.Document
	grants     map[string]models.Permission
	failWrites bool
}

func newMemStore() *memStore {
	return &memStore{
		docs:   make(map[string]*models.Document),
		grants: make(map[string]models.Permission),
	}
}

func (m *memStore) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[docID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (m *memStore) CreateDocumentIfAbsent(ctx context.Context, docID, ownerID, title string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[docID]; ok {
		copied := *doc
		return &copied, nil
	}
	doc := &models.Document{
		ID:       docID,
		OwnerID:  ownerID,
		Title:    title,
		Code:     "",
		Language: models.DefaultLanguage,
	}
	m.docs[docID] = doc
	copied := *doc
	return &copied, nil
}

func (m *memStore) UpdateDocumentContent(ctx context.Context, docID, code, language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errors.New("disk on fire")
	}
	doc, ok := m.docs[docID]
	if !ok {
		return models.ErrNotFound
	}
	doc.Code = code
	doc.Language = language
	return nil
}

func (m *memStore) GetShareGrant(ctx context.Context, docID, userID string) (models.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[docID+"/"+userID], nil
}

func (m *memStore) grant(docID, userID string, perm models.Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[docID+"/"+userID] = perm
}

func newTestEngine(store *memStore) (*SyncEngine, *SessionRegistry) {
	registry := NewSessionRegistry()
	engine := NewSyncEngine(registry, store, access.NewController(store))
	return engine, registry
}

func newTestSession(userID string) *Session {
	return NewSession(nil, userID, userID+"@example.com", "client-"+userID)
}

// frames drains and decodes everything queued on the session's send
// channel. Stops at an empty or sealed queue.
func frames(s *Session) []map[string]any {
	var out []map[string]any
	for {
		select {
		case raw, ok := <-s.Send:
			if !ok {
				return out
			}
			var decoded map[string]any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				panic(err)
			}
			out = append(out, decoded)
		default:
			return out
		}
	}
}

func join(t *testing.T, engine *SyncEngine, s *Session, docID string) {
	t.Helper()
	engine.HandleMessage(context.Background(), s, []byte(`{"type":"join","docId":"`+docID+`"}`))
}

func TestJoinCreatesDocumentWithOwner(t *testing.T) {
	store := newMemStore()
	engine, registry := newTestEngine(store)

	s := newTestSession("alice")
	join(t, engine, s, "doc_1")

	doc, err := store.GetDocument(context.Background(), "doc_1")
	assert.Equal(t, err, nil)
	assert.Equal(t, doc.OwnerID, "alice")
	assert.Equal(t, registry.Count("doc_1"), 1)

	got := frames(s)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0]["type"], "init")
	assert.Equal(t, got[0]["data"].(map[string]any)["code"], "")
	assert.Equal(t, got[0]["data"].(map[string]any)["language"], models.DefaultLanguage)
	assert.Equal(t, got[1]["type"], "userCount")
	assert.Equal(t, got[1]["count"], float64(1))
}

func TestJoinForbidden(t *testing.T) {
	store := newMemStore()
	engine, registry := newTestEngine(store)

	owner := newTestSession("owner")
	join(t, engine, owner, "doc_1")
	frames(owner)

	intruder := newTestSession("intruder")
	join(t, engine, intruder, "doc_1")

	got := frames(intruder)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0]["type"], "error")
	assert.Equal(t, got[0]["error"], "forbidden")
	assert.Equal(t, intruder.state, stateClosed)

	// The queue is sealed after the error frame, so the write pump
	// flushes the frame and only then closes the connection.
	_, open := <-intruder.Send
	assert.Equal(t, open, false)

	// The rejected connection was never admitted, so no presence
	// broadcast reached the owner and the count is unchanged.
	assert.Equal(t, len(frames(owner)), 0)
	assert.Equal(t, registry.Count("doc_1"), 1)

	// A closed session's later messages are dropped.
	engine.HandleMessage(context.Background(), intruder, []byte(`{"type":"update","code":"x","language":"go"}`))
	doc, _ := store.GetDocument(context.Background(), "doc_1")
	assert.Equal(t, doc.Code, "")
}

func TestEditFanoutExcludesSender(t *testing.T) {
	store := newMemStore()
	engine, _ := newTestEngine(store)

	a := newTestSession("owner")
	join(t, engine, a, "doc_1")
	store.grant("doc_1", "bob", models.PermissionEdit)
	store.grant("doc_1", "carol", models.PermissionEdit)

	b := newTestSession("bob")
	c := newTestSession("carol")
	join(t, engine, b, "doc_1")
	join(t, engine, c, "doc_1")
	frames(a)
	frames(b)
	frames(c)

	engine.HandleMessage(context.Background(), a,
		[]byte(`{"type":"update","code":"print(1)","language":"python"}`))

	// Persisted exactly what the sender sent.
	doc, _ := store.GetDocument(context.Background(), "doc_1")
	assert.Equal(t, doc.Code, "print(1)")
	assert.Equal(t, doc.Language, "python")

	// B and C receive the broadcast, the sender does not.
	assert.Equal(t, len(frames(a)), 0)
	for _, s := range []*Session{b, c} {
		got := frames(s)
		assert.Equal(t, len(got), 1)
		assert.Equal(t, got[0]["type"], "update")
		assert.Equal(t, got[0]["data"].(map[string]any)["code"], "print(1)")
	}
}

func TestViewOnlyUpdateDropped(t *testing.T) {
	store := newMemStore()
	engine, _ := newTestEngine(store)

	owner := newTestSession("owner")
	join(t, engine, owner, "doc_1")
	engine.HandleMessage(context.Background(), owner,
		[]byte(`{"type":"update","code":"print(1)","language":"python"}`))
	frames(owner)

	store.grant("doc_1", "viewer", models.PermissionView)
	viewer := newTestSession("viewer")
	join(t, engine, viewer, "doc_1")

	got := frames(viewer)
	assert.Equal(t, got[0]["type"], "init")
	assert.Equal(t, got[0]["data"].(map[string]any)["code"], "print(1)")
	assert.Equal(t, got[0]["data"].(map[string]any)["language"], "python")
	frames(owner)

	// A view-only update is ignored: nothing broadcast, nothing stored.
	engine.HandleMessage(context.Background(), viewer,
		[]byte(`{"type":"update","code":"rm -rf","language":"bash"}`))
	assert.Equal(t, len(frames(owner)), 0)
	assert.Equal(t, len(frames(viewer)), 0)

	doc, _ := store.GetDocument(context.Background(), "doc_1")
	assert.Equal(t, doc.Code, "print(1)")
}

func TestCursorRelay(t *testing.T) {
	store := newMemStore()
	engine, _ := newTestEngine(store)

	a := newTestSession("owner")
	join(t, engine, a, "doc_1")
	store.grant("doc_1", "bob", models.PermissionView)
	b := newTestSession("bob")
	join(t, engine, b, "doc_1")
	frames(a)
	frames(b)

	// Even a view-only member may publish its cursor.
	engine.HandleMessage(context.Background(), b,
		[]byte(`{"type":"cursor","data":{"line":3,"col":7}}`))

	got := frames(a)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0]["type"], "cursor")
	assert.Equal(t, got[0]["clientId"], b.ClientID)
	assert.Equal(t, got[0]["data"].(map[string]any)["line"], float64(3))
	assert.Equal(t, got[0]["data"].(map[string]any)["col"], float64(7))
	assert.Equal(t, len(frames(b)), 0)
}

func TestDisconnectUpdatesPresence(t *testing.T) {
	store := newMemStore()
	engine, registry := newTestEngine(store)

	a := newTestSession("owner")
	join(t, engine, a, "doc_1")
	store.grant("doc_1", "bob", models.PermissionEdit)
	b := newTestSession("bob")
	join(t, engine, b, "doc_1")

	// An unrelated document must not hear about it.
	other := newTestSession("other")
	join(t, engine, other, "doc_2")
	frames(a)
	frames(b)
	frames(other)

	engine.HandleDisconnect(context.Background(), b)

	assert.Equal(t, registry.Count("doc_1"), 1)
	got := frames(a)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0]["type"], "userCount")
	assert.Equal(t, got[0]["count"], float64(1))
	assert.Equal(t, len(frames(other)), 0)

	// Disconnecting twice is harmless.
	engine.HandleDisconnect(context.Background(), b)
	assert.Equal(t, registry.Count("doc_1"), 1)
}

func TestRejoinSwitchesDocuments(t *testing.T) {
	store := newMemStore()
	engine, registry := newTestEngine(store)

	a := newTestSession("alice")
	join(t, engine, a, "doc_1")

	peer := newTestSession("peer")
	store.grant("doc_1", "peer", models.PermissionEdit)
	join(t, engine, peer, "doc_1")
	frames(a)
	frames(peer)

	join(t, engine, a, "doc_2")

	assert.Equal(t, registry.Count("doc_1"), 1)
	assert.Equal(t, registry.Count("doc_2"), 1)
	assert.Equal(t, a.DocID(), "doc_2")

	// The old room saw the departure.
	got := frames(peer)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0]["type"], "userCount")
	assert.Equal(t, got[0]["count"], float64(1))

	// The mover got a fresh snapshot and count for the new document.
	got = frames(a)
	assert.Equal(t, len(got), 2)
	assert.Equal(t, got[0]["type"], "init")
	assert.Equal(t, got[1]["type"], "userCount")
}

func TestRejoinSameDocumentIsIdempotent(t *testing.T) {
	store := newMemStore()
	engine, registry := newTestEngine(store)

	a := newTestSession("alice")
	join(t, engine, a, "doc_1")
	frames(a)

	join(t, engine, a, "doc_1")

	assert.Equal(t, registry.Count("doc_1"), 1)
	got := frames(a)
	// Unbind count, then init and count again: always a correct snapshot
	// no matter how many times the client reconnect logic fires.
	assert.Equal(t, got[len(got)-2]["type"], "init")
	assert.Equal(t, got[len(got)-1]["type"], "userCount")
	assert.Equal(t, got[len(got)-1]["count"], float64(1))
}

func TestPersistFailureNotifiesOnlySender(t *testing.T) {
	store := newMemStore()
	engine, registry := newTestEngine(store)

	a := newTestSession("owner")
	join(t, engine, a, "doc_1")
	store.grant("doc_1", "bob", models.PermissionEdit)
	b := newTestSession("bob")
	join(t, engine, b, "doc_1")
	frames(a)
	frames(b)

	store.failWrites = true
	engine.HandleMessage(context.Background(), a,
		[]byte(`{"type":"update","code":"lost","language":"go"}`))

	// No broadcast of an edit that never became durable; the sender
	// alone hears about the failure, and the room stays intact.
	got := frames(a)
	assert.Equal(t, len(got), 1)
	assert.Equal(t, got[0]["type"], "error")
	assert.Equal(t, len(frames(b)), 0)
	assert.Equal(t, registry.Count("doc_1"), 2)

	doc, _ := store.GetDocument(context.Background(), "doc_1")
	assert.Equal(t, doc.Code, "")
}

func TestMalformedFramesDropped(t *testing.T) {
	store := newMemStore()
	engine, _ := newTestEngine(store)

	s := newTestSession("alice")
	engine.HandleMessage(context.Background(), s, []byte(`not json`))
	engine.HandleMessage(context.Background(), s, []byte(`{"type":"selfdestruct"}`))
	engine.HandleMessage(context.Background(), s, []byte(`{"type":"cursor","data":{"line":1,"col":1}}`))

	// Unbound cursor and garbage produce no response at all.
	assert.Equal(t, len(frames(s)), 0)
	assert.Equal(t, s.state, stateUnbound)
}

func TestDocLockTableDrainsAfterEvents(t *testing.T) {
	store := newMemStore()
	engine, registry := newTestEngine(store)
	ctx := context.Background()

	a := newTestSession("alice")
	join(t, engine, a, "doc_1")
	store.grant("doc_1", "bob", models.PermissionEdit)
	b := newTestSession("bob")
	join(t, engine, b, "doc_1")
	c := newTestSession("carol")
	join(t, engine, c, "doc_2")

	engine.HandleMessage(ctx, a, []byte(`{"type":"update","code":"x","language":"go"}`))
	engine.HandleMessage(ctx, b, []byte(`{"type":"cursor","data":{"line":1,"col":1}}`))
	engine.HandleDisconnect(ctx, a)
	engine.HandleDisconnect(ctx, b)
	engine.HandleDisconnect(ctx, c)

	assert.Equal(t, registry.Count("doc_1"), 0)
	assert.Equal(t, registry.Count("doc_2"), 0)

	// The lock table holds entries only while events are in flight; a
	// long-lived engine must not accumulate one per document ever seen.
	engine.locksMu.Lock()
	entries := len(engine.locks)
	engine.locksMu.Unlock()
	assert.Equal(t, entries, 0)
}
