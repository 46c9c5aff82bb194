package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/schema"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, org schema.Organization) error
	FindByID(ctx context.Context, id snowflake.ID) (*schema.Organization, error)
	FindByCode(ctx context.Context, code string) (*schema.Organization, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status schema.OrganizationStatus, actorID snowflake.ID) (int64, error)
	ListByStatus(ctx context.Context, status schema.OrganizationStatus) ([]schema.Organization, error)
}
