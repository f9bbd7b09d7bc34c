package collaboration

import (
	"context"
	"log"
	"net/http"

	"codesync/internal/middleware"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The deployment fronts this with a reverse proxy that pins the
		// origin; same-origin enforcement happens there.
		return true
	},
}

// WebSocketHandler upgrades authenticated HTTP requests into sync
// sessions.
type WebSocketHandler struct {
	engine *SyncEngine
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(engine *SyncEngine) *WebSocketHandler {
	return &WebSocketHandler{engine: engine}
}

// HandleConnection upgrades the request and starts the session pumps.
// The identity must already be on the context (auth middleware); an
// anonymous request is rejected before the upgrade.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.UserID(ctx)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, span := middleware.StartSpan(ctx, "WebSocket.Connect",
		attribute.String("user.id", userID),
	)
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("failed to upgrade websocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	session := NewSession(conn, userID, middleware.Email(ctx), uuid.NewString())

	// The pumps outlive this handler, so they must not inherit the
	// request context's cancellation. Separate read and write goroutines
	// keep a slow client's writes from blocking its reads and vice versa.
	pumpCtx := context.WithoutCancel(ctx)
	go session.WritePump()
	go session.ReadPump(pumpCtx, h.engine)

	log.Printf("✓ websocket connected (session: %s, user: %s)", session.ID, userID)
}
