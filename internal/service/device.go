package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	apperrors "github.com/homeadapt/securevoice/internal/errors"
	"github.com/homeadapt/securevoice/internal/model"
	"github.com/homeadapt/securevoice/internal/registry"
	"github.com/homeadapt/securevoice/internal/repository"
	"github.com/homeadapt/securevoice/internal/token"
	"github.com/homeadapt/securevoice/internal/util"
)

// DeviceAuthResult is what a successful device credential exchange yields.
type DeviceAuthResult struct {
	AccessToken      string
	ExpiresInSeconds int
	TenantID         string
	Device           model.DeviceInfo
}

// RegisteredDevice carries the one-time plaintext secret produced at
// registration. The secret is never stored or shown again.
type RegisteredDevice struct {
	Device model.DeviceInfo
	Secret string
}

type DeviceService struct {
	devices repository.DeviceRepository
	tenants *registry.TenantRegistry
	issuer  *token.Issuer
}

func NewDeviceService(
	devices repository.DeviceRepository,
	tenants *registry.TenantRegistry,
	issuer *token.Issuer,
) *DeviceService {
	return &DeviceService{devices: devices, tenants: tenants, issuer: issuer}
}

// Authenticate exchanges a device id and secret for a short-lived token.
// Revoked devices are rejected even when the secret matches; the caller sees
// the same rejection as for a bad secret.
func (s *DeviceService) Authenticate(ctx context.Context, deviceID, secret string) (*DeviceAuthResult, error) {
	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("find device: %w", err)
	}

	if device == nil {
		log.Warn().Str("deviceId", deviceID).Msg("device auth: unknown device")
		return nil, apperrors.InvalidCredentials()
	}
	if !device.Active {
		log.Warn().Str("deviceId", deviceID).Msg("device auth: revoked device attempted login")
		return nil, apperrors.InvalidCredentials()
	}
	if !util.ConstantTimeEqual(util.HashSecret(secret), device.SecretHash) {
		log.Warn().Str("deviceId", deviceID).Msg("device auth: bad secret")
		return nil, apperrors.InvalidCredentials()
	}

	accessToken, err := s.issuer.Issue(device.ID, device.TenantID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &DeviceAuthResult{
		AccessToken:      accessToken,
		ExpiresInSeconds: int(s.issuer.TTL().Seconds()),
		TenantID:         device.TenantID,
		Device:           device.Info(),
	}, nil
}

// Refresh verifies an existing token and re-issues it with a fresh expiry.
// The device secret is not required; revocation is re-checked by Verify.
func (s *DeviceService) Refresh(ctx context.Context, tokenString string) (*DeviceAuthResult, error) {
	claims, err := s.issuer.Verify(ctx, tokenString)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpiredToken):
			return nil, apperrors.TokenExpired()
		case errors.Is(err, token.ErrDeviceInactive):
			return nil, apperrors.DeviceRevoked()
		case errors.Is(err, token.ErrInvalidToken):
			return nil, apperrors.InvalidToken("Invalid device token")
		}
		return nil, fmt.Errorf("verify token: %w", err)
	}

	refreshed, err := s.issuer.Refresh(claims)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	log.Debug().Str("deviceId", claims.DeviceID).Msg("device token refreshed")

	return &DeviceAuthResult{
		AccessToken:      refreshed,
		ExpiresInSeconds: int(s.issuer.TTL().Seconds()),
		TenantID:         claims.TenantID,
	}, nil
}

// Register creates a new device under an existing tenant and generates its
// secret. Only the sha256 of the secret is persisted.
func (s *DeviceService) Register(ctx context.Context, deviceID, tenantID, name string) (*RegisteredDevice, error) {
	if s.tenants.Lookup(tenantID) == nil {
		return nil, apperrors.UnknownTenant(tenantID)
	}

	existing, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("find device: %w", err)
	}
	if existing != nil {
		return nil, apperrors.AlreadyExists("Device")
	}

	secret, err := util.GenerateDeviceSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	device, err := s.devices.Create(ctx, model.CreateDeviceParams{
		ID:         deviceID,
		SecretHash: util.HashSecret(secret),
		TenantID:   tenantID,
		Name:       name,
	})
	if err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}

	log.Info().
		Str("deviceId", device.ID).
		Str("tenantId", device.TenantID).
		Msg("device registered")

	return &RegisteredDevice{Device: device.Info(), Secret: secret}, nil
}

// Revoke deactivates a device. Outstanding tokens fail verification on their
// next use.
func (s *DeviceService) Revoke(ctx context.Context, deviceID string) (*model.DeviceInfo, error) {
	device, err := s.devices.Revoke(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("revoke device: %w", err)
	}
	if device == nil {
		return nil, apperrors.NotFound("Device")
	}

	log.Info().Str("deviceId", deviceID).Msg("device revoked")

	info := device.Info()
	return &info, nil
}

// GetInfo returns the public view of a device.
func (s *DeviceService) GetInfo(ctx context.Context, deviceID string) (*model.DeviceInfo, error) {
	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("find device: %w", err)
	}
	if device == nil {
		return nil, apperrors.NotFound("Device")
	}

	info := device.Info()
	return &info, nil
}
