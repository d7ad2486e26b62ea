package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	apperrors "github.com/homeadapt/securevoice/internal/errors"
	"github.com/homeadapt/securevoice/internal/model"
	"github.com/homeadapt/securevoice/internal/registry"
	"github.com/homeadapt/securevoice/internal/session"
	"github.com/homeadapt/securevoice/internal/token"
	"github.com/homeadapt/securevoice/internal/util"
)

// Method names how a webhook request was mapped to a tenant.
type Method string

const (
	MethodDeviceToken   Method = "device_token"
	MethodSharedSecret  Method = "shared_secret"
	MethodSession       Method = "session"
	MethodDefaultTenant Method = "default_tenant"
	MethodNone          Method = "none"
)

// Signals are the raw identity inputs extracted from a webhook request.
type Signals struct {
	BearerToken   string
	TenantHeader  string
	SessionID     string
	DeviceIDParam string
}

// Identity is the outcome of resolution. Tenant is nil when Method is
// MethodNone. Session is set only for session-based resolution.
type Identity struct {
	Tenant   *model.Tenant
	Method   Method
	Session  *session.Record
	DeviceID string
}

// Authenticated reports whether this identity may issue control commands
// without a separate in-call authentication step. Token and secret holders
// proved possession of a credential out of band; session callers have not
// until the session is marked authenticated.
func (id *Identity) Authenticated() bool {
	switch id.Method {
	case MethodDeviceToken, MethodSharedSecret:
		return true
	case MethodSession:
		return id.Session != nil && id.Session.Authenticated
	case MethodDefaultTenant:
		return true
	}
	return false
}

// Resolver maps incoming webhook signals to a tenant. Stronger signals win
// and a presented-but-invalid strong signal fails the request rather than
// falling through to a weaker one.
type Resolver struct {
	tenants         *registry.TenantRegistry
	sessions        *session.Store
	issuer          *token.Issuer
	sharedSecret    string
	defaultTenantID string
}

func NewResolver(
	tenants *registry.TenantRegistry,
	sessions *session.Store,
	issuer *token.Issuer,
	sharedSecret string,
	defaultTenantID string,
) *Resolver {
	return &Resolver{
		tenants:         tenants,
		sessions:        sessions,
		issuer:          issuer,
		sharedSecret:    sharedSecret,
		defaultTenantID: defaultTenantID,
	}
}

// Resolve applies the precedence order: device token, shared secret with
// tenant header, session, configured default tenant. Each signal, once
// presented, must validate; there is no fallthrough on failure.
func (r *Resolver) Resolve(ctx context.Context, sig Signals) (*Identity, error) {
	if sig.DeviceIDParam != "" {
		return r.resolveDeviceToken(ctx, sig)
	}

	if sig.BearerToken != "" && sig.TenantHeader != "" {
		return r.resolveSharedSecret(sig)
	}

	if sig.SessionID != "" {
		return r.resolveSession(sig.SessionID)
	}

	if r.defaultTenantID != "" {
		if tenant := r.tenants.Lookup(r.defaultTenantID); tenant != nil {
			log.Debug().Str("tenantId", tenant.ID).Msg("identity: default tenant fallback")
			return &Identity{Tenant: tenant, Method: MethodDefaultTenant}, nil
		}
		log.Warn().Str("tenantId", r.defaultTenantID).Msg("identity: default tenant not in registry")
	}

	return &Identity{Method: MethodNone}, nil
}

func (r *Resolver) resolveDeviceToken(ctx context.Context, sig Signals) (*Identity, error) {
	if sig.BearerToken == "" {
		log.Warn().Str("deviceId", sig.DeviceIDParam).Msg("identity: device id without bearer token")
		return nil, apperrors.Unauthorized("Device token required")
	}

	claims, err := r.issuer.Verify(ctx, sig.BearerToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpiredToken):
			return nil, apperrors.TokenExpired()
		case errors.Is(err, token.ErrDeviceInactive):
			return nil, apperrors.DeviceRevoked()
		default:
			return nil, apperrors.InvalidToken("Invalid device token")
		}
	}

	if claims.DeviceID != sig.DeviceIDParam {
		log.Warn().
			Str("claimDeviceId", claims.DeviceID).
			Str("paramDeviceId", sig.DeviceIDParam).
			Msg("identity: device id mismatch")
		return nil, apperrors.InvalidToken("Device token does not match device")
	}

	tenant := r.tenants.Lookup(claims.TenantID)
	if tenant == nil {
		return nil, apperrors.UnknownTenant(claims.TenantID)
	}

	return &Identity{Tenant: tenant, Method: MethodDeviceToken, DeviceID: claims.DeviceID}, nil
}

func (r *Resolver) resolveSharedSecret(sig Signals) (*Identity, error) {
	if r.sharedSecret == "" || !util.ConstantTimeEqual(sig.BearerToken, r.sharedSecret) {
		log.Warn().Msg("identity: shared secret mismatch")
		return nil, apperrors.Unauthorized("Invalid webhook credentials")
	}

	tenant := r.tenants.Lookup(sig.TenantHeader)
	if tenant == nil {
		return nil, apperrors.UnknownTenant(sig.TenantHeader)
	}

	return &Identity{Tenant: tenant, Method: MethodSharedSecret}, nil
}

func (r *Resolver) resolveSession(sessionID string) (*Identity, error) {
	if r.sessions.ExpireIfStale(sessionID) {
		return nil, apperrors.SessionExpired()
	}
	record, ok := r.sessions.Get(sessionID)
	if !ok {
		return nil, apperrors.SessionNotFound()
	}

	tenant := r.tenants.Lookup(record.TenantID)
	if tenant == nil {
		return nil, apperrors.UnknownTenant(record.TenantID)
	}

	return &Identity{Tenant: tenant, Method: MethodSession, Session: &record}, nil
}
