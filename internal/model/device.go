package model

import (
	"time"
)

// Device is an edge client (e.g. a Raspberry Pi in a customer's home) that
// authenticates with a long-lived secret, distinct from the tenant's end-user
// credential. Devices are revoked by flipping Active, never deleted.
type Device struct {
	ID         string     `db:"id" json:"deviceId"`
	SecretHash string     `db:"secret_hash" json:"-"`
	TenantID   string     `db:"tenant_id" json:"tenantId"`
	Name       string     `db:"name" json:"name"`
	Active     bool       `db:"active" json:"active"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revokedAt,omitempty"`
}

type CreateDeviceParams struct {
	ID         string
	SecretHash string
	TenantID   string
	Name       string
}

// DeviceInfo is the public view of a device, safe to return to callers.
type DeviceInfo struct {
	DeviceID  string    `json:"device_id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (d *Device) Info() DeviceInfo {
	return DeviceInfo{
		DeviceID:  d.ID,
		TenantID:  d.TenantID,
		Name:      d.Name,
		Active:    d.Active,
		CreatedAt: d.CreatedAt,
	}
}
