// Package domain defines the transaction store: business event headers and
// their ordered lines, written and read as one unit.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/pkg/db/pagination"
)

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// CodePrefix prefixes generated transaction codes.
const CodePrefix = "TXN-"

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Service interface {
	Execute(ctx context.Context, req Request) (*Response, error)
	// FindByCode returns nil when no transaction carries the code.
	FindByCode(ctx context.Context, orgID snowflake.ID, code string) (*schema.Transaction, error)
}

type Request struct {
	Action         Action       `json:"action"`
	ActorUserID    snowflake.ID `json:"actor_user_id"`
	OrganizationID snowflake.ID `json:"organization_id"`
	Transaction    Header       `json:"transaction"`
	Lines          []LineInput  `json:"lines,omitempty"`
	Options        Options      `json:"options"`
}

// Header carries the writable header fields. Zero values mean "not supplied"
// on UPDATE.
type Header struct {
	ID              snowflake.ID   `json:"id,omitempty"`
	TransactionType string         `json:"transaction_type,omitempty"`
	TransactionCode string         `json:"transaction_code,omitempty"`
	TransactionDate *time.Time     `json:"transaction_date,omitempty"`
	SmartCode       string         `json:"smart_code,omitempty"`
	SourceEntityID  *snowflake.ID  `json:"source_entity_id,omitempty"`
	TargetEntityID  *snowflake.ID  `json:"target_entity_id,omitempty"`
	TotalAmount     int64          `json:"total_amount,omitempty"`
	Status          string         `json:"transaction_status,omitempty"`
	CurrencyCode    string         `json:"transaction_currency_code,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type LineInput struct {
	LineNumber   int            `json:"line_number"`
	LineType     string         `json:"line_type"`
	LineEntityID *snowflake.ID  `json:"line_entity_id,omitempty"`
	Quantity     *float64       `json:"quantity,omitempty"`
	UnitAmount   int64          `json:"unit_amount,omitempty"`
	LineAmount   int64          `json:"line_amount"`
	DebitAmount  *int64         `json:"debit_amount,omitempty"`
	CreditAmount *int64         `json:"credit_amount,omitempty"`
	SmartCode    string         `json:"smart_code"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type Options struct {
	IncludeLines bool    `json:"include_lines,omitempty"`
	Filters      Filters `json:"filters,omitempty"`
	Limit        int     `json:"limit,omitempty"`
	PageToken    string  `json:"page_token,omitempty"`
}

// Filters select transactions for list reads. DateFrom is inclusive, DateTo
// exclusive. Metadata matches top-level string values.
type Filters struct {
	TransactionType string            `json:"transaction_type,omitempty"`
	Statuses        []string          `json:"statuses,omitempty"`
	DateFrom        *time.Time        `json:"date_from,omitempty"`
	DateTo          *time.Time        `json:"date_to,omitempty"`
	SourceEntityID  snowflake.ID      `json:"source_entity_id,omitempty"`
	TargetEntityID  snowflake.ID      `json:"target_entity_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Record is a header with its lines. Lines is never nil.
type Record struct {
	schema.Transaction
	Lines []schema.TransactionLine `json:"lines"`
}

type Response struct {
	Action        Action               `json:"action"`
	TransactionID snowflake.ID         `json:"transaction_id,omitempty"`
	Transaction   *Record              `json:"transaction,omitempty"`
	Transactions  []Record             `json:"transactions,omitempty"`
	PageInfo      *pagination.PageInfo `json:"page_info,omitempty"`
	Deleted       bool                 `json:"deleted,omitempty"`
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

var (
	ErrInvalidAction          = errors.New("invalid_action")
	ErrInvalidActor           = errors.New("invalid_actor")
	ErrInvalidOrganization    = errors.New("invalid_organization")
	ErrInvalidTransactionType = errors.New("invalid_transaction_type")
	ErrInvalidStatus          = errors.New("invalid_transaction_status")
	ErrInvalidStatusChange    = errors.New("invalid_status_transition")
	ErrInvalidCurrency        = errors.New("invalid_currency")
	ErrInvalidLine            = errors.New("invalid_line")
	ErrInvalidFilter          = errors.New("invalid_filter")
	ErrInvalidLineSequence    = errors.New("invalid_line_sequence")
	ErrUnbalancedJournal      = errors.New("unbalanced_journal")
	ErrLinesImmutable         = errors.New("lines_immutable")
	ErrMissingTransactionID   = errors.New("missing_transaction_id")
	ErrDuplicateCode          = errors.New("duplicate_transaction_code")
	ErrNotFound               = errors.New("not_found")
	ErrAlreadyPosted          = errors.New("already_posted")
	ErrNotDraft               = errors.New("transaction_not_draft")
)
