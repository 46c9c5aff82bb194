package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/internal/transaction/domain"
	"github.com/smallbiznis/hera/pkg/db/pagination"
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

func (r *repository) Insert(ctx context.Context, txn schema.Transaction) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO universal_transactions (
			id, organization_id, transaction_type, transaction_code, transaction_date,
			smart_code, source_entity_id, target_entity_id, total_amount,
			transaction_status, transaction_currency_code, metadata,
			created_by, updated_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.OrganizationID,
		txn.TransactionType,
		txn.TransactionCode,
		txn.TransactionDate,
		txn.SmartCode,
		txn.SourceEntityID,
		txn.TargetEntityID,
		txn.TotalAmount,
		txn.TransactionStatus,
		txn.TransactionCurrencyCode,
		txn.Metadata,
		txn.CreatedBy,
		txn.UpdatedBy,
		txn.CreatedAt,
		txn.UpdatedAt,
	).Error
}

func (r *repository) InsertLines(ctx context.Context, lines []schema.TransactionLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *repository) FindByID(ctx context.Context, orgID, id snowflake.ID) (*schema.Transaction, error) {
	return r.findOne(ctx, "organization_id = ? AND id = ?", orgID, id)
}

func (r *repository) FindByCode(ctx context.Context, orgID snowflake.ID, code string) (*schema.Transaction, error) {
	return r.findOne(ctx, "organization_id = ? AND transaction_code = ?", orgID, code)
}

func (r *repository) findOne(ctx context.Context, query string, args ...any) (*schema.Transaction, error) {
	var txn schema.Transaction
	err := r.db.WithContext(ctx).Where(query, args...).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) List(ctx context.Context, orgID snowflake.ID, filters domain.Filters, after *pagination.Cursor, limit int) ([]schema.Transaction, error) {
	stmt := r.db.WithContext(ctx).
		Model(&schema.Transaction{}).
		Where("organization_id = ?", orgID)
	if filters.TransactionType != "" {
		stmt = stmt.Where("transaction_type = ?", filters.TransactionType)
	}
	if len(filters.Statuses) > 0 {
		stmt = stmt.Where("transaction_status IN ?", filters.Statuses)
	}
	if filters.DateFrom != nil {
		stmt = stmt.Where("transaction_date >= ?", filters.DateFrom.UTC())
	}
	if filters.DateTo != nil {
		stmt = stmt.Where("transaction_date < ?", filters.DateTo.UTC())
	}
	if filters.SourceEntityID != 0 {
		stmt = stmt.Where("source_entity_id = ?", filters.SourceEntityID)
	}
	if filters.TargetEntityID != 0 {
		stmt = stmt.Where("target_entity_id = ?", filters.TargetEntityID)
	}
	for key, value := range filters.Metadata {
		stmt = stmt.Where(fmt.Sprintf("%s = ?", r.metadataText(key)), value)
	}
	if after != nil {
		stmt = stmt.Where("(transaction_date > ? OR (transaction_date = ? AND id > ?))", after.At, after.At, after.ID)
	}

	var rows []schema.Transaction
	err := stmt.Order("transaction_date ASC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// metadataText extracts a top-level metadata key as text. Keys are validated
// by the service before they reach SQL.
func (r *repository) metadataText(key string) string {
	switch r.db.Dialector.Name() {
	case "postgres":
		return fmt.Sprintf("metadata ->> '%s'", key)
	case "mysql":
		return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(metadata, '$.%s'))", key)
	default:
		return fmt.Sprintf("json_extract(metadata, '$.%s')", key)
	}
}

func (r *repository) ListLines(ctx context.Context, orgID snowflake.ID, transactionIDs []snowflake.ID) ([]schema.TransactionLine, error) {
	lines := []schema.TransactionLine{}
	if len(transactionIDs) == 0 {
		return lines, nil
	}
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND transaction_id IN ?", orgID, transactionIDs).
		Order("transaction_id ASC").
		Order("line_number ASC").
		Find(&lines).Error
	return lines, err
}

func (r *repository) Update(ctx context.Context, orgID, id snowflake.ID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&schema.Transaction{}).
		Where("organization_id = ? AND id = ?", orgID, id).
		Updates(updates).Error
}

func (r *repository) UpdateLine(ctx context.Context, orgID, transactionID snowflake.ID, lineNumber int, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&schema.TransactionLine{}).
		Where("organization_id = ? AND transaction_id = ? AND line_number = ?", orgID, transactionID, lineNumber).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) Delete(ctx context.Context, orgID, id snowflake.ID) error {
	if err := r.db.WithContext(ctx).Exec(
		`DELETE FROM universal_transaction_lines WHERE organization_id = ? AND transaction_id = ?`,
		orgID, id,
	).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM universal_transactions WHERE organization_id = ? AND id = ?`,
		orgID, id,
	).Error
}

func (r *repository) CountEntities(ctx context.Context, orgID snowflake.ID, ids []snowflake.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&schema.Entity{}).
		Where("organization_id = ? AND id IN ?", orgID, ids).
		Count(&count).Error
	return count, err
}
