// Package token mints and verifies the short-lived JWTs that bind an edge
// device to its tenant. Tokens are self-contained HS256 claims; there is no
// revocation list because the TTL is short and verification re-checks the
// device registry on every call.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/homeadapt/securevoice/internal/model"
)

var (
	ErrInvalidToken   = errors.New("invalid device token")
	ErrExpiredToken   = errors.New("device token expired")
	ErrDeviceInactive = errors.New("device revoked or unknown")
)

const claimType = "device_token"

// Claims is the verified content of a device token.
type Claims struct {
	DeviceID  string
	TenantID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// DeviceFinder is the registry lookup Verify needs. Satisfied by
// repository.DeviceRepository.
type DeviceFinder interface {
	FindByID(ctx context.Context, id string) (*model.Device, error)
}

type Issuer struct {
	secret  []byte
	ttl     time.Duration
	devices DeviceFinder
}

func NewIssuer(secret []byte, ttl time.Duration, devices DeviceFinder) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, devices: devices}
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue mints a fresh token for the device/tenant pair.
func (i *Issuer) Issue(deviceID, tenantID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"device_id": deviceID,
		"tenant_id": tenantID,
		"type":      claimType,
		"iat":       now.Unix(),
		"exp":       now.Add(i.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates the signature, claim shape and expiry, then re-checks
// that the device still exists and is active. The embedded expiry is never
// trusted on its own; jwt.Parse compares it against the wall clock.
func (i *Issuer) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if typ, _ := mapClaims["type"].(string); typ != claimType {
		return nil, ErrInvalidToken
	}

	deviceID, _ := mapClaims["device_id"].(string)
	tenantID, _ := mapClaims["tenant_id"].(string)
	if deviceID == "" || tenantID == "" {
		return nil, ErrInvalidToken
	}

	device, err := i.devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("lookup device: %w", err)
	}
	if device == nil || !device.Active {
		return nil, ErrDeviceInactive
	}

	claims := &Claims{DeviceID: deviceID, TenantID: tenantID}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// Refresh re-issues a token from previously verified claims. The device
// secret is not required again; callers must have called Verify first.
func (i *Issuer) Refresh(claims *Claims) (string, error) {
	return i.Issue(claims.DeviceID, claims.TenantID)
}
