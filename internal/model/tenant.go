package model

import (
	"time"
)

// Tenant maps a customer account to its home-automation backend.
// Records are immutable after the registry loads them at startup.
type Tenant struct {
	ID          string    `db:"id" json:"id"`
	DisplayName string    `db:"display_name" json:"displayName"`
	BackendURL  string    `db:"backend_url" json:"backendUrl"`
	WebhookID   string    `db:"webhook_id" json:"webhookId"`
	Password    *string   `db:"password" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
