package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/homeadapt/securevoice/internal/model"
	"github.com/homeadapt/securevoice/internal/registry"
	"github.com/homeadapt/securevoice/internal/service"
	"github.com/homeadapt/securevoice/internal/token"
	"github.com/homeadapt/securevoice/internal/util"
)

func newDeviceFixture(repo *mockDeviceRepo) *DeviceHandler {
	password := "alpha-bravo-123"
	tenants := registry.New([]model.Tenant{
		{ID: "acme", DisplayName: "Acme Home", Password: &password},
	})
	issuer := token.NewIssuer([]byte("test-secret-for-handler-tests!!!"), 15*time.Minute, repo)
	return NewDeviceHandler(service.NewDeviceService(repo, tenants, issuer))
}

func testDevice() *model.Device {
	return &model.Device{
		ID:         "lamp-01",
		SecretHash: util.HashSecret(testDeviceSecret),
		TenantID:   "acme",
		Name:       "Living room lamp",
		Active:     true,
	}
}

func postJSON(t *testing.T, fn http.HandlerFunc, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(http.MethodPost, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func TestDeviceAuth(t *testing.T) {
	repo := new(mockDeviceRepo)
	repo.On("FindByID", mock.Anything, "lamp-01").Return(testDevice(), nil)
	h := newDeviceFixture(repo)

	rec := postJSON(t, h.Auth, "/device/auth", map[string]string{
		"device_id":     "lamp-01",
		"device_secret": testDeviceSecret,
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp deviceAuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 15*60, resp.ExpiresInSeconds)
	assert.Equal(t, "acme", resp.TenantID)
	require.NotNil(t, resp.DeviceInfo)
	assert.Equal(t, "lamp-01", resp.DeviceInfo.DeviceID)
}

func TestDeviceAuthWrongSecret(t *testing.T) {
	repo := new(mockDeviceRepo)
	repo.On("FindByID", mock.Anything, "lamp-01").Return(testDevice(), nil)
	h := newDeviceFixture(repo)

	rec := postJSON(t, h.Auth, "/device/auth", map[string]string{
		"device_id":     "lamp-01",
		"device_secret": "dev_secret_wrong",
	}, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "access_token")
}

func TestDeviceAuthUnknownDevice(t *testing.T) {
	repo := new(mockDeviceRepo)
	repo.On("FindByID", mock.Anything, "ghost").Return(nil, nil)
	h := newDeviceFixture(repo)

	rec := postJSON(t, h.Auth, "/device/auth", map[string]string{
		"device_id":     "ghost",
		"device_secret": "dev_secret_whatever",
	}, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeviceAuthMissingFields(t *testing.T) {
	repo := new(mockDeviceRepo)
	h := newDeviceFixture(repo)

	rec := postJSON(t, h.Auth, "/device/auth", map[string]string{"device_id": "lamp-01"}, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	repo.AssertNotCalled(t, "FindByID")
}

func TestDeviceRefresh(t *testing.T) {
	repo := new(mockDeviceRepo)
	repo.On("FindByID", mock.Anything, "lamp-01").Return(testDevice(), nil)
	h := newDeviceFixture(repo)

	rec := postJSON(t, h.Auth, "/device/auth", map[string]string{
		"device_id":     "lamp-01",
		"device_secret": testDeviceSecret,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var authResp deviceAuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authResp))

	rec = postJSON(t, h.Refresh, "/device/refresh", nil, authResp.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var refreshResp deviceRefreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refreshResp))
	assert.NotEmpty(t, refreshResp.AccessToken)
	assert.Equal(t, 15*60, refreshResp.ExpiresInSeconds)
}

func TestDeviceRefreshRejections(t *testing.T) {
	repo := new(mockDeviceRepo)
	h := newDeviceFixture(repo)

	tests := []struct {
		name   string
		bearer string
	}{
		{"missing token", ""},
		{"garbage token", "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.Refresh, "/device/refresh", nil, tt.bearer)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
