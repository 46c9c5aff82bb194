package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/entity/domain"
	"github.com/smallbiznis/hera/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

func (r *repository) Insert(ctx context.Context, entity schema.Entity) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO core_entities (
			id, organization_id, entity_type, entity_name, entity_code, smart_code,
			status, metadata, created_by, updated_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entity.ID,
		entity.OrganizationID,
		entity.EntityType,
		entity.EntityName,
		entity.EntityCode,
		entity.SmartCode,
		entity.Status,
		entity.Metadata,
		entity.CreatedBy,
		entity.UpdatedBy,
		entity.CreatedAt,
		entity.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, orgID, id snowflake.ID) (*schema.Entity, error) {
	var entity schema.Entity
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *repository) Find(ctx context.Context, orgID snowflake.ID, filters domain.Filters, limit int) ([]schema.Entity, error) {
	stmt := r.db.WithContext(ctx).
		Model(&schema.Entity{}).
		Where("organization_id = ?", orgID)
	if filters.EntityType != "" {
		stmt = stmt.Where("entity_type = ?", filters.EntityType)
	}
	if filters.EntityCode != "" {
		stmt = stmt.Where("entity_code = ?", filters.EntityCode)
	}
	if filters.Status != "" {
		stmt = stmt.Where("status = ?", filters.Status)
	}
	for name, value := range filters.Fields {
		column, arg, err := fieldColumn(value)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where(
			fmt.Sprintf(`EXISTS (
				SELECT 1 FROM core_dynamic_data d
				WHERE d.organization_id = core_entities.organization_id
				  AND d.entity_id = core_entities.id
				  AND d.field_name = ?
				  AND d.%s = ?)`, column),
			strings.TrimSpace(name),
			arg,
		)
	}

	var entities []schema.Entity
	err := stmt.Order("created_at ASC, id ASC").Limit(limit).Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *repository) Update(ctx context.Context, orgID, id snowflake.ID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&schema.Entity{}).
		Where("organization_id = ? AND id = ?", orgID, id).
		Updates(updates).Error
}

func (r *repository) Delete(ctx context.Context, orgID, id snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM core_entities WHERE organization_id = ? AND id = ?`,
		orgID,
		id,
	).Error
}

func (r *repository) UpsertField(ctx context.Context, field schema.DynamicField) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "organization_id"},
				{Name: "entity_id"},
				{Name: "field_name"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"field_type",
				"value_text",
				"value_number",
				"value_boolean",
				"value_json",
				"value_date",
				"smart_code",
				"updated_by",
				"updated_at",
			}),
		}).
		Create(&field).Error
}

func (r *repository) ListFields(ctx context.Context, orgID snowflake.ID, entityIDs []snowflake.ID) ([]schema.DynamicField, error) {
	if len(entityIDs) == 0 {
		return []schema.DynamicField{}, nil
	}
	var fields []schema.DynamicField
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND entity_id IN ?", orgID, entityIDs).
		Order("entity_id ASC, field_name ASC").
		Find(&fields).Error
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func (r *repository) DeleteFields(ctx context.Context, orgID, entityID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM core_dynamic_data WHERE organization_id = ? AND entity_id = ?`,
		orgID,
		entityID,
	).Error
}

func (r *repository) CountReferences(ctx context.Context, orgID, id snowflake.ID) (int64, error) {
	var counts struct {
		Lines         int64
		Headers       int64
		Relationships int64
	}
	err := r.db.WithContext(ctx).Raw(
		`SELECT
			(SELECT COUNT(1) FROM universal_transaction_lines
			 WHERE organization_id = ? AND line_entity_id = ?) AS lines,
			(SELECT COUNT(1) FROM universal_transactions
			 WHERE organization_id = ? AND (source_entity_id = ? OR target_entity_id = ?)) AS headers,
			(SELECT COUNT(1) FROM core_relationships
			 WHERE organization_id = ? AND (from_entity_id = ? OR to_entity_id = ?)) AS relationships`,
		orgID, id,
		orgID, id, id,
		orgID, id, id,
	).Scan(&counts).Error
	if err != nil {
		return 0, err
	}
	return counts.Lines + counts.Headers + counts.Relationships, nil
}

func fieldColumn(value any) (string, any, error) {
	switch v := value.(type) {
	case string:
		return "value_text", v, nil
	case bool:
		return "value_boolean", v, nil
	case float64:
		return "value_number", v, nil
	case float32:
		return "value_number", float64(v), nil
	case int:
		return "value_number", float64(v), nil
	case int64:
		return "value_number", float64(v), nil
	default:
		return "", nil, fmt.Errorf("%w: unsupported filter value %T", domain.ErrInvalidField, value)
	}
}
