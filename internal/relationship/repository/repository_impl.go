package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/relationship/domain"
	"github.com/smallbiznis/hera/internal/schema"
	"gorm.io/datatypes"
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

func (r *repository) Insert(ctx context.Context, rel schema.Relationship) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO core_relationships (
			id, organization_id, from_entity_id, to_entity_id, relationship_type,
			relationship_data, is_active, smart_code, created_by, updated_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rel.ID,
		rel.OrganizationID,
		rel.FromEntityID,
		rel.ToEntityID,
		rel.RelationshipType,
		rel.RelationshipData,
		rel.IsActive,
		rel.SmartCode,
		rel.CreatedBy,
		rel.UpdatedBy,
		rel.CreatedAt,
		rel.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, orgID, id snowflake.ID) (*schema.Relationship, error) {
	var rel schema.Relationship
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (r *repository) FindActiveEdge(ctx context.Context, orgID, fromID, toID snowflake.ID, relType string) (*schema.Relationship, error) {
	var rel schema.Relationship
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND from_entity_id = ? AND to_entity_id = ? AND relationship_type = ? AND is_active = ?",
			orgID, fromID, toID, relType, true).
		First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (r *repository) ListActiveByType(ctx context.Context, orgID, fromID snowflake.ID, relType string) ([]schema.Relationship, error) {
	var rels []schema.Relationship
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND from_entity_id = ? AND relationship_type = ? AND is_active = ?",
			orgID, fromID, relType, true).
		Order("created_at ASC, id ASC").
		Find(&rels).Error
	if err != nil {
		return nil, err
	}
	return rels, nil
}

func (r *repository) List(ctx context.Context, filter domain.ListRequest) ([]schema.Relationship, error) {
	stmt := r.db.WithContext(ctx).Where("organization_id = ?", filter.OrganizationID)
	if filter.FromEntityID != 0 {
		stmt = stmt.Where("from_entity_id = ?", filter.FromEntityID)
	}
	if filter.ToEntityID != 0 {
		stmt = stmt.Where("to_entity_id = ?", filter.ToEntityID)
	}
	if relType := strings.TrimSpace(filter.RelationshipType); relType != "" {
		stmt = stmt.Where("relationship_type = ?", relType)
	}
	if !filter.IncludeInactive {
		stmt = stmt.Where("is_active = ?", true)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var rels []schema.Relationship
	if err := stmt.Order("created_at ASC, id ASC").Find(&rels).Error; err != nil {
		return nil, err
	}
	return rels, nil
}

func (r *repository) UpdateData(ctx context.Context, orgID, id snowflake.ID, data datatypes.JSONMap, actorID snowflake.ID, at time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE core_relationships
		 SET relationship_data = ?, updated_by = ?, updated_at = ?
		 WHERE organization_id = ? AND id = ?`,
		data,
		actorID,
		at,
		orgID,
		id,
	).Error
}

func (r *repository) Deactivate(ctx context.Context, orgID, id snowflake.ID, data datatypes.JSONMap, actorID snowflake.ID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE core_relationships
		 SET is_active = ?, relationship_data = ?, updated_by = ?, updated_at = ?
		 WHERE organization_id = ? AND id = ? AND is_active = ?`,
		false,
		data,
		actorID,
		at,
		orgID,
		id,
		true,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) CountEntities(ctx context.Context, orgID snowflake.ID, ids []snowflake.ID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&schema.Entity{}).
		Where("organization_id = ? AND id IN ?", orgID, ids).
		Count(&count).Error
	return count, err
}

func (r *repository) FindEntityByCode(ctx context.Context, orgID snowflake.ID, entityType, code string) (*schema.Entity, error) {
	var entity schema.Entity
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND entity_type = ? AND entity_code = ?", orgID, entityType, code).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *repository) InsertEntity(ctx context.Context, entity schema.Entity) error {
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
