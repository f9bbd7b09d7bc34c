package collaboration

import (
	"sync"

	"codesync/internal/models"
)

// SessionRegistry tracks which sessions are viewing which document, plus
// their ephemeral cursor positions. It is created at process start and
// injected into the sync engine; rooms appear when the first session
// joins a document and are discarded when the last one leaves, so memory
// stays bounded by live traffic. Nothing here survives a restart and
// nothing needs to.
type SessionRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	members map[*Session]bool
	cursors map[*Session]models.CursorPosition
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		rooms: make(map[string]*room),
	}
}

// Admit adds a session to the document's membership set. Idempotent per
// session.
func (r *SessionRegistry) Admit(docID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[docID]
	if rm == nil {
		rm = &room{
			members: make(map[*Session]bool),
			cursors: make(map[*Session]models.CursorPosition),
		}
		r.rooms[docID] = rm
	}
	rm.members[s] = true
}

// Remove takes a session out of the document's membership set, dropping
// its cursor state. An empty room is evicted.
func (r *SessionRegistry) Remove(docID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[docID]
	if rm == nil {
		return
	}
	delete(rm.members, s)
	delete(rm.cursors, s)
	if len(rm.members) == 0 {
		delete(r.rooms, docID)
	}
}

// Count returns the number of live sessions on the document. This drives
// the userCount presence broadcast.
func (r *SessionRegistry) Count(docID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm := r.rooms[docID]
	if rm == nil {
		return 0
	}
	return len(rm.members)
}

// Broadcast delivers a frame to every admitted session on the document
// except the excluded one (pass nil to reach everyone). Delivery is
// best-effort per recipient.
func (r *SessionRegistry) Broadcast(docID string, frame []byte, exclude *Session) {
	r.mu.RLock()
	rm := r.rooms[docID]
	var recipients []*Session
	if rm != nil {
		recipients = make([]*Session, 0, len(rm.members))
		for s := range rm.members {
			if s != exclude {
				recipients = append(recipients, s)
			}
		}
	}
	r.mu.RUnlock()

	for _, s := range recipients {
		s.deliver(frame)
	}
}

// SetCursor records a session's latest cursor position. Cursor state is
// presence only; it is relayed to peers and discarded with the session.
func (r *SessionRegistry) SetCursor(docID string, s *Session, pos models.CursorPosition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[docID]
	if rm == nil || !rm.members[s] {
		return
	}
	rm.cursors[s] = pos
}

// Sessions returns the live sessions on a document.
func (r *SessionRegistry) Sessions(docID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm := r.rooms[docID]
	result := make([]*Session, 0)
	if rm != nil {
		for s := range rm.members {
			result = append(result, s)
		}
	}
	return result
}

// Shutdown terminates every live session. Called once during process
// shutdown, after the HTTP server has stopped accepting upgrades.
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rm := range r.rooms {
		for s := range rm.members {
			s.terminate()
		}
	}
	r.rooms = make(map[string]*room)
}
