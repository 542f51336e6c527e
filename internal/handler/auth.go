package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/service"
	"lootcase-api/pkg/apierror"
	"lootcase-api/pkg/response"
)

// SessionChecker validates and revokes player sessions.
type SessionChecker interface {
	service.SessionValidator
	Revoke(ctx context.Context, token string) error
}

// AuthHandler exposes session checks to trusted collaborators such as the
// chat and shop services.
type AuthHandler struct {
	sessions SessionChecker
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(sessions SessionChecker) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// ValidateRequest represents the request body for session validation.
type ValidateRequest struct {
	UserID    string   `json:"userId"`
	AuthToken string   `json:"authToken"`
	Fields    []string `json:"fields"`
}

// ValidateResponse mirrors service.SessionResult on the wire.
type ValidateResponse struct {
	Valid bool                   `json:"valid"`
	Error string                 `json:"error,omitempty"`
	Stats map[string]interface{} `json:"stats,omitempty"`
}

// ValidateSession handles POST /api/v1/auth/validate
func (h *AuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	res, err := h.sessions.Validate(r.Context(), req.AuthToken, req.UserID, req.Fields)
	if err != nil {
		log.WithFields(log.Fields{
			"component": "auth",
			"event":     "security",
			"user_id":   req.UserID,
		}).WithError(err).Warn("Session validation errored")
		response.OK(w, ValidateResponse{Valid: false, Error: "session check unavailable"})
		return
	}

	response.OK(w, ValidateResponse{Valid: res.Valid, Error: res.Error, Stats: res.Stats})
}

// RevokeSession handles POST /api/v1/auth/revoke
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.Header.Get("X-Token")
	}
	if token == "" {
		response.Error(w, apierror.BadRequest("Authorization header required"))
		return
	}

	if err := h.sessions.Revoke(r.Context(), token); err != nil {
		response.Error(w, apierror.InternalError("failed to revoke session"))
		return
	}

	response.OK(w, map[string]string{"status": "revoked"})
}
