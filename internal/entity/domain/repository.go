package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/schema"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, entity schema.Entity) error
	FindByID(ctx context.Context, orgID, id snowflake.ID) (*schema.Entity, error)
	Find(ctx context.Context, orgID snowflake.ID, filters Filters, limit int) ([]schema.Entity, error)
	Update(ctx context.Context, orgID, id snowflake.ID, updates map[string]any) error
	Delete(ctx context.Context, orgID, id snowflake.ID) error

	UpsertField(ctx context.Context, field schema.DynamicField) error
	ListFields(ctx context.Context, orgID snowflake.ID, entityIDs []snowflake.ID) ([]schema.DynamicField, error)
	DeleteFields(ctx context.Context, orgID, entityID snowflake.ID) error

	// CountReferences counts transaction lines, transaction headers and
	// relationship rows, active or closed, addressing the entity.
	CountReferences(ctx context.Context, orgID, id snowflake.ID) (int64, error)
}
