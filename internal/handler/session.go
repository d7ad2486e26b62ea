package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/homeadapt/securevoice/internal/audit"
	apperrors "github.com/homeadapt/securevoice/internal/errors"
	"github.com/homeadapt/securevoice/internal/registry"
	"github.com/homeadapt/securevoice/internal/session"
)

type SessionHandler struct {
	tenants  *registry.TenantRegistry
	sessions *session.Store
}

func NewSessionHandler(tenants *registry.TenantRegistry, sessions *session.Store) *SessionHandler {
	return &SessionHandler{tenants: tenants, sessions: sessions}
}

type createSessionRequest struct {
	TenantID string `json:"tenant_id"`
	Password string `json:"password"`
}

type createSessionResponse struct {
	SessionID     string `json:"session_id"`
	Authenticated bool   `json:"authenticated"`
}

// Create allocates an unauthenticated session. The password is checked here
// and only the outcome is retained; authentication itself happens later via
// the in-call auth function.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "Invalid request body"))
		return
	}
	if req.TenantID == "" {
		writeError(w, apperrors.MissingRequired("tenant_id"))
		return
	}

	tenant := h.tenants.Lookup(req.TenantID)
	if tenant == nil {
		writeError(w, apperrors.UnknownTenant(req.TenantID))
		return
	}

	credentialsValid := h.tenants.ValidateCredentials(req.TenantID, req.Password) != nil
	record := h.sessions.Create(tenant.ID, credentialsValid)

	log.Info().
		Str("tenantId", tenant.ID).
		Str("sessionId", record.ID).
		Bool("credentialsValid", credentialsValid).
		Msg("session created")

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionCreate,
		TenantID:  tenant.ID,
		SessionID: record.ID,
		Details:   map[string]interface{}{"credentials_valid": credentialsValid},
	})

	writeJSON(w, http.StatusOK, createSessionResponse{
		SessionID:     record.ID,
		Authenticated: false,
	})
}
