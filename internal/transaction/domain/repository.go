package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, txn schema.Transaction) error
	InsertLines(ctx context.Context, lines []schema.TransactionLine) error
	FindByID(ctx context.Context, orgID, id snowflake.ID) (*schema.Transaction, error)
	FindByCode(ctx context.Context, orgID snowflake.ID, code string) (*schema.Transaction, error)
	// List returns up to limit rows ordered by (transaction_date, id) after
	// the cursor.
	List(ctx context.Context, orgID snowflake.ID, filters Filters, after *pagination.Cursor, limit int) ([]schema.Transaction, error)
	ListLines(ctx context.Context, orgID snowflake.ID, transactionIDs []snowflake.ID) ([]schema.TransactionLine, error)
	Update(ctx context.Context, orgID, id snowflake.ID, updates map[string]any) error
	UpdateLine(ctx context.Context, orgID, transactionID snowflake.ID, lineNumber int, updates map[string]any) (int64, error)
	Delete(ctx context.Context, orgID, id snowflake.ID) error
	CountEntities(ctx context.Context, orgID snowflake.ID, ids []snowflake.ID) (int64, error)
}
