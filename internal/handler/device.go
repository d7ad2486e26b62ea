package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/homeadapt/securevoice/internal/audit"
	apperrors "github.com/homeadapt/securevoice/internal/errors"
	"github.com/homeadapt/securevoice/internal/model"
	"github.com/homeadapt/securevoice/internal/service"
)

type DeviceHandler struct {
	devices *service.DeviceService
}

func NewDeviceHandler(devices *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

type deviceAuthRequest struct {
	DeviceID     string `json:"device_id"`
	DeviceSecret string `json:"device_secret"`
}

type deviceAuthResponse struct {
	AccessToken      string            `json:"access_token"`
	TokenType        string            `json:"token_type"`
	ExpiresInSeconds int               `json:"expires_in_seconds"`
	TenantID         string            `json:"tenant_id"`
	DeviceInfo       *model.DeviceInfo `json:"device_info,omitempty"`
}

// Auth exchanges a device id and secret for a bearer token.
func (h *DeviceHandler) Auth(w http.ResponseWriter, r *http.Request) {
	var req deviceAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "Invalid request body"))
		return
	}
	if req.DeviceID == "" || req.DeviceSecret == "" {
		writeError(w, apperrors.InvalidCredentials())
		return
	}

	result, err := h.devices.Authenticate(r.Context(), req.DeviceID, req.DeviceSecret)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:     audit.EventDeviceAuthFailure,
			DeviceID: req.DeviceID,
		})
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventDeviceAuthSuccess,
		TenantID: result.TenantID,
		DeviceID: req.DeviceID,
	})

	writeJSON(w, http.StatusOK, deviceAuthResponse{
		AccessToken:      result.AccessToken,
		TokenType:        "Bearer",
		ExpiresInSeconds: result.ExpiresInSeconds,
		TenantID:         result.TenantID,
		DeviceInfo:       &result.Device,
	})
}

type deviceRefreshResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

// Refresh re-issues a still-valid token ahead of its expiry.
func (h *DeviceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		writeError(w, apperrors.Unauthorized("Missing bearer token"))
		return
	}

	result, err := h.devices.Refresh(r.Context(), tokenString)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventTokenRefresh,
		TenantID: result.TenantID,
	})

	writeJSON(w, http.StatusOK, deviceRefreshResponse{
		AccessToken:      result.AccessToken,
		ExpiresInSeconds: result.ExpiresInSeconds,
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}
