package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/homeadapt/securevoice/internal/audit"
	apperrors "github.com/homeadapt/securevoice/internal/errors"
	"github.com/homeadapt/securevoice/internal/model"
	"github.com/homeadapt/securevoice/internal/service"
)

// AdminHandler exposes device provisioning. The routes are mounted behind
// the admin token middleware.
type AdminHandler struct {
	devices *service.DeviceService
}

func NewAdminHandler(devices *service.DeviceService) *AdminHandler {
	return &AdminHandler{devices: devices}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/devices", h.RegisterDevice)
	r.Post("/devices/{deviceID}/revoke", h.RevokeDevice)
	r.Get("/devices/{deviceID}", h.GetDevice)
	return r
}

type registerDeviceRequest struct {
	DeviceID string `json:"device_id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

type registerDeviceResponse struct {
	Device       model.DeviceInfo `json:"device"`
	DeviceSecret string           `json:"device_secret"`
}

// RegisterDevice provisions a device and returns its secret. The secret is
// shown exactly once; only its hash is stored.
func (h *AdminHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "Invalid request body"))
		return
	}
	if req.DeviceID == "" {
		writeError(w, apperrors.MissingRequired("device_id"))
		return
	}
	if req.TenantID == "" {
		writeError(w, apperrors.MissingRequired("tenant_id"))
		return
	}

	registered, err := h.devices.Register(r.Context(), req.DeviceID, req.TenantID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventDeviceRegister,
		TenantID: req.TenantID,
		DeviceID: req.DeviceID,
	})

	writeJSON(w, http.StatusCreated, registerDeviceResponse{
		Device:       registered.Device,
		DeviceSecret: registered.Secret,
	})
}

func (h *AdminHandler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	info, err := h.devices.Revoke(r.Context(), deviceID)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventDeviceRevoke,
		TenantID: info.TenantID,
		DeviceID: deviceID,
	})

	writeJSON(w, http.StatusOK, map[string]any{"device": info})
}

func (h *AdminHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	info, err := h.devices.GetInfo(r.Context(), deviceID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"device": info})
}
