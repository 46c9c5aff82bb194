package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/schema"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, rel schema.Relationship) error
	FindByID(ctx context.Context, orgID, id snowflake.ID) (*schema.Relationship, error)
	FindActiveEdge(ctx context.Context, orgID, fromID, toID snowflake.ID, relType string) (*schema.Relationship, error)
	ListActiveByType(ctx context.Context, orgID, fromID snowflake.ID, relType string) ([]schema.Relationship, error)
	List(ctx context.Context, filter ListRequest) ([]schema.Relationship, error)
	UpdateData(ctx context.Context, orgID, id snowflake.ID, data datatypes.JSONMap, actorID snowflake.ID, at time.Time) error
	Deactivate(ctx context.Context, orgID, id snowflake.ID, data datatypes.JSONMap, actorID snowflake.ID, at time.Time) (int64, error)
	CountEntities(ctx context.Context, orgID snowflake.ID, ids []snowflake.ID) (int64, error)
	FindEntityByCode(ctx context.Context, orgID snowflake.ID, entityType, code string) (*schema.Entity, error)
	InsertEntity(ctx context.Context, entity schema.Entity) error
}
