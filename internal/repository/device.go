package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/homeadapt/securevoice/internal/model"
)

type DeviceRepository interface {
	FindByID(ctx context.Context, id string) (*model.Device, error)
	FindByTenantID(ctx context.Context, tenantID string) ([]model.Device, error)
	Create(ctx context.Context, params model.CreateDeviceParams) (*model.Device, error)
	// Revoke flips the active flag. The record is kept so revoked device ids
	// cannot be silently re-registered with a fresh secret.
	Revoke(ctx context.Context, id string) (*model.Device, error)
	Count(ctx context.Context) (int, error)
}

type deviceRepo struct {
	db sqlxDB
}

func NewDeviceRepository(db *sqlx.DB) DeviceRepository {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) FindByID(ctx context.Context, id string) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		SELECT * FROM devices WHERE id = $1
	`, id)
	return HandleNotFound(&device, err)
}

func (r *deviceRepo) FindByTenantID(ctx context.Context, tenantID string) ([]model.Device, error) {
	var devices []model.Device
	err := r.db.SelectContext(ctx, &devices, `
		SELECT * FROM devices
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *deviceRepo) Create(ctx context.Context, params model.CreateDeviceParams) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		INSERT INTO devices (id, secret_hash, tenant_id, name, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING *
	`, params.ID, params.SecretHash, params.TenantID, params.Name)
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepo) Revoke(ctx context.Context, id string) (*model.Device, error) {
	var device model.Device
	err := r.db.GetContext(ctx, &device, `
		UPDATE devices SET
			active = FALSE,
			revoked_at = $2
		WHERE id = $1
		RETURNING *
	`, id, time.Now())
	return HandleNotFound(&device, err)
}

func (r *deviceRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM devices`)
	return count, err
}
