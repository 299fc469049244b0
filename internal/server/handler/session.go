package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/tradeview/internal/domain"
)

// SessionStore is the credential slot read by venue requests.
type SessionStore interface {
	Current() domain.Session
	Set(s domain.Session)
	Clear()
}

// SessionHandler is the login/logout glue that writes the session slot.
type SessionHandler struct {
	store  SessionStore
	logger *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(store SessionStore, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logHandler(logger, "session")}
}

type sessionRequest struct {
	Token     string `json:"token"`
	AccountID string `json:"account_id"`
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	AccountID     string `json:"account_id,omitempty"`
}

// GetSession reports whether a session is active. The token is never echoed.
// GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s := h.store.Current()
	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: s.Authenticated(), AccountID: s.AccountID})
}

// PutSession installs the venue token used by subsequent requests.
// PUT /api/session
func (h *SessionHandler) PutSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	account := strings.TrimSpace(req.AccountID)

	h.store.Set(domain.Session{Token: token, AccountID: account})
	h.logger.InfoContext(r.Context(), "session set", slog.String("account_id", account))
	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: true, AccountID: account})
}

// DeleteSession clears the session.
// DELETE /api/session
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.store.Clear()
	h.logger.InfoContext(r.Context(), "session cleared")
	w.WriteHeader(http.StatusNoContent)
}
