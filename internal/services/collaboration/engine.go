package collaboration

import (
	"context"
	"errors"
	"log"
	"sync"

	"codesync/internal/middleware"
	"codesync/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

// DocumentStore is the durable half of the engine's world: snapshot
// loads, lazy creation, and content writes. The gorm document repository
// satisfies it; tests use an in-memory fake.
type DocumentStore interface {
	GetDocument(ctx context.Context, docID string) (*models.Document, error)
	CreateDocumentIfAbsent(ctx context.Context, docID, ownerID, title string) (*models.Document, error)
	UpdateDocumentContent(ctx context.Context, docID, code, language string) error
}

// AccessResolver computes the effective permission for a join.
type AccessResolver interface {
	ResolvePermission(ctx context.Context, userID, docID string) (models.Permission, error)
}

// SyncEngine drives the per-connection state machine: it authorizes
// joins, applies edits to the store, and computes the broadcast set for
// every event.
//
// Events for the same document are serialized on a per-document lock, so
// all members observe broadcasts in the order the engine processed the
// originating events. Events for different documents run in parallel.
type SyncEngine struct {
	registry *SessionRegistry
	store    DocumentStore
	access   AccessResolver

	// Per-document event locks, refcounted so an entry lives only while
	// some event holds or waits on it. Without the refcount the table
	// would grow by one entry per document id ever seen.
	locksMu sync.Mutex
	locks   map[string]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

// NewSyncEngine creates a sync engine over the given registry, store, and
// access controller.
func NewSyncEngine(registry *SessionRegistry, store DocumentStore, access AccessResolver) *SyncEngine {
	return &SyncEngine{
		registry: registry,
		store:    store,
		access:   access,
		locks:    make(map[string]*docLock),
	}
}

// lockDoc serializes events for one document. The returned func releases
// the lock and drops the table entry once no other event needs it.
func (e *SyncEngine) lockDoc(docID string) func() {
	e.locksMu.Lock()
	l := e.locks[docID]
	if l == nil {
		l = &docLock{}
		e.locks[docID] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, docID)
		}
		e.locksMu.Unlock()
	}
}

// HandleMessage parses and dispatches one inbound frame from a session.
// Malformed and unknown frames are dropped: well-behaved clients never
// send them, and a protocol violation must not take the process down.
func (e *SyncEngine) HandleMessage(ctx context.Context, s *Session, raw []byte) {
	msg, err := models.ParseClientMessage(raw)
	if err != nil {
		log.Printf("dropping bad frame from session %s: %v", s.ID, err)
		return
	}

	ctx, span := middleware.StartSpan(ctx, "Sync.HandleMessage",
		attribute.String("session.id", s.ID),
		attribute.String("user.id", s.UserID),
	)
	defer span.End()

	switch m := msg.(type) {
	case models.JoinMessage:
		e.handleJoin(ctx, s, m)
	case models.UpdateMessage:
		e.handleUpdate(ctx, s, m)
	case models.CursorMessage:
		e.handleCursor(ctx, s, m)
	}
}

// handleJoin binds the session to a document. A session already bound to
// another document is unbound from it first, presence count included, so
// a connection is never a member of two rooms at once.
//
// Joining a document that does not exist creates it with the joiner as
// owner. This is the only path that assigns ownership on join; if the
// document exists the joiner's permission comes from ownership or a
// grant, and none means a one-shot error frame followed by termination.
func (e *SyncEngine) handleJoin(ctx context.Context, s *Session, msg models.JoinMessage) {
	if s.state == stateClosed || msg.DocID == "" {
		return
	}

	if s.state == stateBound {
		e.unbind(s)
	}

	unlock := e.lockDoc(msg.DocID)
	defer unlock()

	doc, err := e.store.GetDocument(ctx, msg.DocID)
	if errors.Is(err, models.ErrNotFound) {
		doc, err = e.store.CreateDocumentIfAbsent(ctx, msg.DocID, s.UserID, models.DefaultTitle)
	}
	if err != nil {
		middleware.AddSpanError(ctx, err)
		log.Printf("join %s failed for session %s: %v", msg.DocID, s.ID, err)
		s.deliver(models.ErrorFrame("server error"))
		return
	}

	perm, err := e.access.ResolvePermission(ctx, s.UserID, msg.DocID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		s.deliver(models.ErrorFrame("server error"))
		return
	}

	if perm == models.PermissionNone {
		// One error frame, then seal the queue. The write pump flushes
		// the frame before it closes the connection, so a denied client
		// sees the reason and not a bare close. The session was never
		// admitted, so no presence broadcast fires for this attempt.
		s.state = stateClosed
		s.deliver(models.ErrorFrame("forbidden"))
		s.closeSend()
		log.Printf("  session %s denied on document %s", s.ID, msg.DocID)
		return
	}

	s.state = stateBound
	s.docID = msg.DocID
	s.perm = perm

	e.registry.Admit(msg.DocID, s)
	s.deliver(models.InitFrame(doc.Code, doc.Language))
	e.registry.Broadcast(msg.DocID, models.UserCountFrame(e.registry.Count(msg.DocID)), nil)

	log.Printf("  session %s joined document %s as %s (total: %d users)",
		s.ID, msg.DocID, perm, e.registry.Count(msg.DocID))
}

// handleUpdate applies an edit: persist first, broadcast after. The
// broadcast excludes the sender so its own keystrokes are never echoed
// back. A view-only session's update is silently dropped.
func (e *SyncEngine) handleUpdate(ctx context.Context, s *Session, msg models.UpdateMessage) {
	if s.state != stateBound {
		return
	}
	if !s.perm.CanEdit() {
		return
	}

	unlock := e.lockDoc(s.docID)
	defer unlock()

	language := msg.Language
	if language == "" {
		language = models.DefaultLanguage
	}

	// The edit counts as applied only once the write has durably
	// completed; broadcasting earlier could show members content that a
	// concurrent join's snapshot load does not yet contain.
	if err := e.store.UpdateDocumentContent(ctx, s.docID, msg.Code, language); err != nil {
		middleware.AddSpanError(ctx, err)
		log.Printf("persist failed for document %s: %v", s.docID, err)
		s.deliver(models.ErrorFrame("update failed"))
		return
	}

	e.registry.Broadcast(s.docID, models.UpdateFrame(msg.Code, language), s)
}

// handleCursor relays a cursor position to the other members. Cursor
// state requires a bound session (so at least view permission at join
// time) and is never persisted.
func (e *SyncEngine) handleCursor(ctx context.Context, s *Session, msg models.CursorMessage) {
	if s.state != stateBound {
		return
	}

	unlock := e.lockDoc(s.docID)
	defer unlock()

	e.registry.SetCursor(s.docID, s, msg.Data)
	e.registry.Broadcast(s.docID, models.CursorFrame(s.ClientID, msg.Data), s)
}

// HandleDisconnect finishes the session's life from any state: a bound
// session leaves its room and the remaining members get the new count.
func (e *SyncEngine) HandleDisconnect(ctx context.Context, s *Session) {
	if s.state == stateBound {
		e.unbind(s)
	}
	s.state = stateClosed
}

// unbind removes the session from its current room and tells the
// remaining members the new presence count, atomically with respect to
// other events on that document.
func (e *SyncEngine) unbind(s *Session) {
	docID := s.docID

	unlock := e.lockDoc(docID)
	defer unlock()

	e.registry.Remove(docID, s)
	e.registry.Broadcast(docID, models.UserCountFrame(e.registry.Count(docID)), nil)

	s.state = stateUnbound
	s.docID = ""
	s.perm = models.PermissionNone

	log.Printf("  session %s left document %s (remaining: %d users)",
		s.ID, docID, e.registry.Count(docID))
}
