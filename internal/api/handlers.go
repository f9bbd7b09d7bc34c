package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"codesync/internal/access"
	"codesync/internal/auth"
	"codesync/internal/middleware"
	"codesync/internal/models"
	"codesync/internal/repository"
	"codesync/internal/services/collaboration"
	"codesync/internal/share"

	"github.com/gorilla/mux"
)

// Handler handles HTTP requests.
type Handler struct {
	users     *repository.UserRepositoryImpl
	docs      *repository.DocumentRepositoryImpl
	shares    *repository.ShareRepositoryImpl
	accessCtl *access.Controller
	links     *share.Manager
	tokens    *auth.TokenIssuer
	wsHandler *collaboration.WebSocketHandler
}

func NewHandler(
	users *repository.UserRepositoryImpl,
	docs *repository.DocumentRepositoryImpl,
	shares *repository.ShareRepositoryImpl,
	accessCtl *access.Controller,
	links *share.Manager,
	tokens *auth.TokenIssuer,
	wsHandler *collaboration.WebSocketHandler,
) *Handler {
	return &Handler{
		users:     users,
		docs:      docs,
		shares:    shares,
		accessCtl: accessCtl,
		links:     links,
		tokens:    tokens,
		wsHandler: wsHandler,
	}
}

// Auth handlers

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing email/password")
		return
	}

	email := auth.NormalizeEmail(body.Email)
	if !auth.ValidEmail(email) {
		writeErrorMessage(w, http.StatusBadRequest, "invalid email")
		return
	}

	if policyErrs := auth.PasswordPolicyErrors(body.Password); len(policyErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "weak password",
			"details": policyErrs,
		})
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Create(r.Context(), email, hash)
	if errors.Is(err, models.ErrConflict) {
		writeErrorMessage(w, http.StatusConflict, "email already exists")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	h.respondWithToken(w, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing email/password")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), auth.NormalizeEmail(body.Email))
	if errors.Is(err, models.ErrNotFound) || (err == nil && !auth.CheckPassword(user.PasswordHash, body.Password)) {
		writeErrorMessage(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	h.respondWithToken(w, user)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"user": map[string]string{
			"id":    middleware.UserID(r.Context()),
			"email": middleware.Email(r.Context()),
		},
	})
}

func (h *Handler) respondWithToken(w http.ResponseWriter, user *models.User) {
	token, err := h.tokens.Issue(user.ID, user.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"token": token,
		"user":  map[string]string{"id": user.ID, "email": user.Email},
	})
}

// Document handlers

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	owned, err := h.docs.ListOwned(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	shared, err := h.docs.ListSharedWith(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"owned":  owned,
		"shared": shared,
	})
}

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing id")
		return
	}

	doc, err := h.docs.CreateDocumentIfAbsent(r.Context(), body.ID, middleware.UserID(r.Context()), body.Title)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":  true,
		"doc": map[string]string{"id": doc.ID, "title": doc.Title},
	})
}

func (h *Handler) RenameDocument(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	docID := mux.Vars(r)["id"]
	err := h.docs.Rename(r.Context(), docID, middleware.UserID(r.Context()), body.Title)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["id"]
	err := h.docs.Delete(r.Context(), docID, middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Share handlers

// GrantShare lets a document's owner grant edit or view to a user by
// email. Granting to the owner themselves is a no-op success; owner
// access is never grant-based.
func (h *Handler) GrantShare(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DocID      string            `json:"docId"`
		Email      string            `json:"email"`
		Permission models.Permission `json:"permission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DocID == "" || body.Email == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing docId/email")
		return
	}
	if !body.Permission.ValidGrant() {
		body.Permission = models.PermissionEdit
	}

	ownerID := middleware.UserID(r.Context())
	perm, err := h.accessCtl.ResolvePermission(r.Context(), ownerID, body.DocID)
	if err != nil {
		writeError(w, err)
		return
	}
	if perm != models.PermissionOwner {
		writeError(w, models.ErrForbidden)
		return
	}

	target, err := h.users.GetByEmail(r.Context(), auth.NormalizeEmail(body.Email))
	if errors.Is(err, models.ErrNotFound) {
		writeErrorMessage(w, http.StatusNotFound, "no such user")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if target.ID == ownerID {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if err := h.shares.UpsertShareGrant(r.Context(), body.DocID, target.ID, body.Permission); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DocID string `json:"docId"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DocID == "" || body.Email == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing docId/email")
		return
	}

	ownerID := middleware.UserID(r.Context())
	perm, err := h.accessCtl.ResolvePermission(r.Context(), ownerID, body.DocID)
	if err != nil {
		writeError(w, err)
		return
	}
	if perm != models.PermissionOwner {
		writeError(w, models.ErrForbidden)
		return
	}

	target, err := h.users.GetByEmail(r.Context(), auth.NormalizeEmail(body.Email))
	if errors.Is(err, models.ErrNotFound) {
		writeErrorMessage(w, http.StatusNotFound, "no such user")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if target.ID == ownerID {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if err := h.shares.DeleteShareGrant(r.Context(), body.DocID, target.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) ListShares(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing docId")
		return
	}

	ownerID := middleware.UserID(r.Context())
	perm, err := h.accessCtl.ResolvePermission(r.Context(), ownerID, docID)
	if err != nil {
		writeError(w, err)
		return
	}
	if perm != models.PermissionOwner {
		writeError(w, models.ErrForbidden)
		return
	}

	grants, err := h.shares.ListGrants(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"ownerEmail": middleware.Email(r.Context()),
		"shares":     grants,
	})
}

// CreateShareLink mints a bearer link. The share manager enforces that
// view-only holders cannot create links.
func (h *Handler) CreateShareLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DocID      string            `json:"docId"`
		Permission models.Permission `json:"permission"`
		TTLHours   int               `json:"ttlHours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DocID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing docId")
		return
	}

	token, err := h.links.CreateLink(
		r.Context(),
		middleware.UserID(r.Context()),
		body.DocID,
		body.Permission,
		time.Duration(body.TTLHours)*time.Hour,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "token": token})
}

func (h *Handler) AcceptShareLink(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		writeErrorMessage(w, http.StatusBadRequest, "missing token")
		return
	}

	docID, err := h.links.RedeemLink(r.Context(), middleware.UserID(r.Context()), body.Token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "docId": docID})
}

// WebSocket

// HandleSync upgrades the connection into a collaboration session.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}

// Response helpers

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, models.ErrForbidden):
		writeErrorMessage(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, models.ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrExpired):
		writeErrorMessage(w, http.StatusGone, "link expired")
	case errors.Is(err, models.ErrConflict):
		writeErrorMessage(w, http.StatusConflict, "already exists")
	default:
		writeErrorMessage(w, http.StatusInternalServerError, "server error")
	}
}
