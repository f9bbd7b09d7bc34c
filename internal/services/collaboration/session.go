package collaboration

import (
	"context"
	"log"
	"sync"
	"time"

	"codesync/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// connState is the per-connection state machine: a connection starts
// unbound, becomes bound by a successful join, and is closed on
// disconnect or rejection. Closed is terminal.
type connState int

const (
	stateUnbound connState = iota
	stateBound
	stateClosed
)

// Session represents one active WebSocket connection. The document
// binding, resolved permission, and cursor live only here; nothing about
// a session is ever persisted.
type Session struct {
	*models.Session
	Conn     *websocket.Conn
	Send     chan []byte // Buffered channel for outbound messages
	ClientID string      // Per-connection id for cursor attribution

	// State below is mutated only by the sync engine while it holds the
	// relevant document's event lock.
	state connState
	docID string
	perm  models.Permission

	closeOnce sync.Once
	sendOnce  sync.Once
}

// NewSession wraps an upgraded connection. The identity comes from the
// verified auth token, never from the client's messages.
func NewSession(conn *websocket.Conn, userID, email, clientID string) *Session {
	return &Session{
		Session:  models.NewSession(userID, email),
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		ClientID: clientID,
		state:    stateUnbound,
	}
}

// DocID returns the bound document id, or "" before a successful join.
func (s *Session) DocID() string {
	return s.docID
}

// Permission returns the permission resolved at join time.
func (s *Session) Permission() models.Permission {
	return s.perm
}

// deliver queues a frame for the write pump. Delivery is best-effort: a
// session whose buffer is full (slow or mid-close connection) is skipped
// so one bad receiver never stalls a broadcast.
func (s *Session) deliver(frame []byte) {
	select {
	case s.Send <- frame:
	default:
		log.Printf("⚠️  session %s send buffer full, dropping frame", s.ID)
	}
}

// closeSend seals the outbound queue once. The write pump drains what is
// already queued, sends the close frame, and only then closes the
// connection, so a frame queued before closeSend always reaches the wire.
func (s *Session) closeSend() {
	s.sendOnce.Do(func() {
		close(s.Send)
	})
}

// terminate closes the underlying connection once. Used during shutdown
// to force the read pump out; everything else ends a session by sealing
// the send queue and letting the write pump close the connection.
func (s *Session) terminate() {
	s.closeOnce.Do(func() {
		if s.Conn != nil {
			s.Conn.Close()
		}
	})
}

// ReadPump reads frames from the WebSocket and feeds them to the engine.
// Each session has its own read goroutine, so events from one connection
// arrive at the engine in order.
func (s *Session) ReadPump(ctx context.Context, engine *SyncEngine) {
	defer func() {
		// Leave the room first so no further broadcast can target this
		// session, then seal the queue; the write pump flushes whatever
		// is left and closes the connection.
		engine.HandleDisconnect(ctx, s)
		s.closeSend()
	}()

	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		s.LastActiveAt = time.Now()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			return
		}

		s.LastActiveAt = time.Now()
		engine.HandleMessage(ctx, s, raw)

		if s.state == stateClosed {
			return
		}
	}
}

// WritePump writes queued frames to the WebSocket and keeps the
// connection alive with pings. A separate write goroutine prevents slow
// clients from blocking the broadcaster.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.terminate()
	}()

	for {
		select {
		case frame, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
