// Package domain defines daily ledger posting: summarize one branch-day of
// sales, resolve the posting policy and emit one balanced journal.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Category string

const (
	CategoryServiceRevenue Category = "service_revenue"
	CategoryProductRevenue Category = "product_revenue"
	CategoryVATServices    Category = "vat_services"
	CategoryVATProducts    Category = "vat_products"
	CategoryTips           Category = "tips"
	CategoryDiscounts      Category = "discounts"
)

// Categories lists every summary category in journal order.
var Categories = []Category{
	CategoryServiceRevenue,
	CategoryProductRevenue,
	CategoryVATServices,
	CategoryVATProducts,
	CategoryTips,
	CategoryDiscounts,
}

const (
	PolicyEntityType    = "POSTING_POLICY"
	GLAccountEntityType = "GL_ACCOUNT"
	BranchEntityType    = "BRANCH"
	DefaultPolicyCode   = "DEFAULT"

	ClearingField = "clearing_account"
	TimezoneField = "timezone"

	PolicySmartCode      = "HERA.FINANCE.POSTING.POLICY.DAILY.V1"
	PolicyFieldSmartCode = "HERA.FINANCE.POSTING.POLICY.ACCOUNT.V1"
	JournalSmartCode     = "HERA.FINANCE.GL.JOURNAL.DAILY.V1"
	JournalLineSmartCode = "HERA.FINANCE.GL.LINE.DAILY.V1"

	JournalCodePrefix = "JE-DAILY-"
	DayLayout         = "2006-01-02"
)

// AccountField names the policy field holding the GL account of a category.
func AccountField(c Category) string {
	return string(c) + "_account"
}

// JournalCode is the per-organization idempotency key of a branch-day.
func JournalCode(branchID snowflake.ID, day time.Time) string {
	return JournalCodePrefix + branchID.String() + "-" + day.Format("20060102")
}

type Service interface {
	Summarize(ctx context.Context, req SummaryRequest) (*Summary, error)
	ResolvePolicy(ctx context.Context, req PolicyRequest) (*Policy, error)
	PostDaily(ctx context.Context, req PostRequest) (*Result, error)
	// ApplyPolicy writes a policy file as a POSTING_POLICY entity.
	ApplyPolicy(ctx context.Context, req ApplyPolicyRequest) (*Policy, error)
}

type SummaryRequest struct {
	ActorUserID    snowflake.ID
	OrganizationID snowflake.ID
	BranchID       snowflake.ID
	// Day is a calendar date; only its year, month and day are used.
	Day      time.Time
	Location *time.Location
}

type PolicyRequest struct {
	ActorUserID    snowflake.ID
	OrganizationID snowflake.ID
	BranchID       snowflake.ID
}

type Summary struct {
	OrganizationID snowflake.ID       `json:"organization_id"`
	BranchID       snowflake.ID       `json:"branch_id"`
	BusinessDate   string             `json:"business_date"`
	Timezone       string             `json:"timezone"`
	Currency       string             `json:"currency,omitempty"`
	Totals         map[Category]int64 `json:"totals"`
	// ByCurrency is only set when the day mixes currencies.
	ByCurrency       map[string]map[Category]int64 `json:"by_currency,omitempty"`
	TransactionCount int                           `json:"transaction_count"`
	TransactionIDs   []snowflake.ID                `json:"transaction_ids"`
}

// Empty reports a day with nothing to post: no qualifying sales, or sales
// whose lines all fall outside the posting categories.
func (s *Summary) Empty() bool {
	if s == nil || s.TransactionCount == 0 {
		return true
	}
	for _, c := range Categories {
		if s.Totals[c] != 0 {
			return false
		}
	}
	return true
}

// NetCollected is what reaches the clearing account.
func (s *Summary) NetCollected() int64 {
	var net int64
	for _, c := range Categories {
		if c == CategoryDiscounts {
			net -= s.Totals[c]
			continue
		}
		net += s.Totals[c]
	}
	return net
}

type Policy struct {
	EntityID        snowflake.ID              `json:"entity_id"`
	Code            string                    `json:"code"`
	Accounts        map[Category]snowflake.ID `json:"accounts"`
	ClearingAccount snowflake.ID              `json:"clearing_account"`
	Timezone        string                    `json:"timezone"`
}

// Location falls back to UTC when the policy names no timezone.
func (p *Policy) Location() (*time.Location, error) {
	if p == nil || p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, ErrInvalidTimezone
	}
	return loc, nil
}

type PostRequest struct {
	ActorUserID    snowflake.ID `json:"actor_user_id"`
	OrganizationID snowflake.ID `json:"organization_id"`
	BranchID       snowflake.ID `json:"branch_id"`
	// Day is YYYY-MM-DD in the policy timezone. Empty posts the previous
	// UTC day.
	Day string `json:"day"`
}

type Result struct {
	JournalID       snowflake.ID `json:"journal_id"`
	TransactionCode string       `json:"transaction_code"`
	DebitTotal      int64        `json:"debit_total"`
	CreditTotal     int64        `json:"credit_total"`
	Summary         *Summary     `json:"summary"`
}

type ApplyPolicyRequest struct {
	ActorUserID    snowflake.ID
	OrganizationID snowflake.ID
	File           PolicyFile
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidBranch       = errors.New("invalid_branch")
	ErrInvalidDay          = errors.New("invalid_day")
	ErrInvalidTimezone     = errors.New("invalid_timezone")
	ErrInvalidPolicy       = errors.New("invalid_policy")
	ErrNoSalesFound        = errors.New("no_sales_found")
	ErrNoPolicy            = errors.New("no_policy")
	ErrAlreadyPosted       = errors.New("already_posted")
	ErrCurrencyMismatch    = errors.New("currency_mismatch")
	ErrNegativeNet         = errors.New("negative_net_sales")
)

// Error carries the summary a failed posting attempted.
type Error struct {
	Err     error
	Summary *Summary
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// SummaryOf returns the summary attached to a posting error, if any.
func SummaryOf(err error) *Summary {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Summary
	}
	return nil
}
