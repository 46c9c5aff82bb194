package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/organization/domain"
	"github.com/smallbiznis/hera/internal/schema"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, org schema.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO core_organizations (id, organization_name, organization_code, status, settings, created_by, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.OrganizationName,
		org.OrganizationCode,
		org.Status,
		org.Settings,
		org.CreatedBy,
		org.UpdatedBy,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*schema.Organization, error) {
	var org schema.Organization
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*schema.Organization, error) {
	var org schema.Organization
	err := r.db.WithContext(ctx).Where("organization_code = ?", code).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id snowflake.ID, status schema.OrganizationStatus, actorID snowflake.ID) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE core_organizations SET status = ?, updated_by = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status,
		actorID,
		id,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) ListByStatus(ctx context.Context, status schema.OrganizationStatus) ([]schema.Organization, error) {
	var orgs []schema.Organization
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Find(&orgs).Error
	if err != nil {
		return nil, err
	}
	return orgs, nil
}
