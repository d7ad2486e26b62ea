// Package registry holds the read-only tenant table. Tenants are loaded from
// the database once at startup; every lookup after that is an in-memory map
// read, so webhook dispatch never waits on the database for routing.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/homeadapt/securevoice/internal/model"
	"github.com/homeadapt/securevoice/internal/repository"
	"github.com/homeadapt/securevoice/internal/util"
)

type TenantRegistry struct {
	tenants map[string]model.Tenant
}

func New(tenants []model.Tenant) *TenantRegistry {
	byID := make(map[string]model.Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
	}
	return &TenantRegistry{tenants: byID}
}

func Load(ctx context.Context, repo repository.TenantRepository) (*TenantRegistry, error) {
	tenants, err := repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tenants: %w", err)
	}

	log.Info().Int("count", len(tenants)).Msg("tenant registry loaded")
	return New(tenants), nil
}

// Lookup returns a copy of the tenant record, or nil if unknown.
func (r *TenantRegistry) Lookup(id string) *model.Tenant {
	tenant, ok := r.tenants[id]
	if !ok {
		return nil
	}
	return &tenant
}

// ValidateCredentials checks a tenant id and password pair. Stored passwords
// are bcrypt hashes; plain values from older tenant configs are compared in
// constant time. A tenant without a password cannot use credential mode.
func (r *TenantRegistry) ValidateCredentials(id, password string) *model.Tenant {
	tenant := r.Lookup(id)
	if tenant == nil || tenant.Password == nil {
		return nil
	}

	stored := *tenant.Password
	if isBcryptHash(stored) {
		if !util.CheckPasswordHash(password, stored) {
			return nil
		}
	} else if !util.ConstantTimeEqual(stored, password) {
		return nil
	}

	return tenant
}

func (r *TenantRegistry) Len() int {
	return len(r.tenants)
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") ||
		strings.HasPrefix(s, "$2b$") ||
		strings.HasPrefix(s, "$2y$")
}
