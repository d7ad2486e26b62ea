package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/homeadapt/securevoice/internal/model"
	"github.com/homeadapt/securevoice/internal/registry"
	"github.com/homeadapt/securevoice/internal/service"
	"github.com/homeadapt/securevoice/internal/token"
)

func newAdminFixture(repo *mockDeviceRepo) *AdminHandler {
	password := "alpha-bravo-123"
	tenants := registry.New([]model.Tenant{
		{ID: "acme", DisplayName: "Acme Home", Password: &password},
	})
	issuer := token.NewIssuer([]byte("test-secret-for-admin-tests!!!!!"), 15*time.Minute, repo)
	return NewAdminHandler(service.NewDeviceService(repo, tenants, issuer))
}

func TestAdminRegisterDevice(t *testing.T) {
	repo := new(mockDeviceRepo)
	repo.On("FindByID", mock.Anything, "lamp-02").Return(nil, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(&model.Device{
		ID:       "lamp-02",
		TenantID: "acme",
		Name:     "Bedroom lamp",
		Active:   true,
	}, nil)

	h := newAdminFixture(repo)
	router := h.Routes()

	body, _ := json.Marshal(map[string]string{
		"device_id": "lamp-02",
		"tenant_id": "acme",
		"name":      "Bedroom lamp",
	})
	req := httptest.NewRequest(http.MethodPost, "/devices", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp registerDeviceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "lamp-02", resp.Device.DeviceID)
	assert.True(t, strings.HasPrefix(resp.DeviceSecret, "dev_secret_"))
}

func TestAdminRegisterUnknownTenant(t *testing.T) {
	repo := new(mockDeviceRepo)
	h := newAdminFixture(repo)
	router := h.Routes()

	body, _ := json.Marshal(map[string]string{
		"device_id": "lamp-02",
		"tenant_id": "nobody",
	})
	req := httptest.NewRequest(http.MethodPost, "/devices", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRevokeDevice(t *testing.T) {
	now := time.Now()
	repo := new(mockDeviceRepo)
	repo.On("Revoke", mock.Anything, "lamp-01").Return(&model.Device{
		ID:        "lamp-01",
		TenantID:  "acme",
		Active:    false,
		RevokedAt: &now,
	}, nil)

	h := newAdminFixture(repo)
	router := h.Routes()

	req := httptest.NewRequest(http.MethodPost, "/devices/lamp-01/revoke", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":false`)
}

func TestAdminGetDevice(t *testing.T) {
	repo := new(mockDeviceRepo)
	repo.On("FindByID", mock.Anything, "lamp-01").Return(testDevice(), nil)

	h := newAdminFixture(repo)
	router := h.Routes()

	req := httptest.NewRequest(http.MethodGet, "/devices/lamp-01", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"device_id":"lamp-01"`)
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestAdminGetUnknownDevice(t *testing.T) {
	repo := new(mockDeviceRepo)
	repo.On("FindByID", mock.Anything, "ghost").Return(nil, nil)

	h := newAdminFixture(repo)
	router := h.Routes()

	req := httptest.NewRequest(http.MethodGet, "/devices/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
