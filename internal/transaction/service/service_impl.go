package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/hera/internal/clock"
	"github.com/smallbiznis/hera/internal/config"
	"github.com/smallbiznis/hera/internal/observability/metrics"
	"github.com/smallbiznis/hera/internal/observability/tracing"
	orgdomain "github.com/smallbiznis/hera/internal/organization/domain"
	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/internal/smartcode"
	"github.com/smallbiznis/hera/internal/transaction/domain"
	"github.com/smallbiznis/hera/pkg/db"
	"github.com/smallbiznis/hera/pkg/db/pagination"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultCurrency applies when neither the request, the organization settings
// nor the configuration name a currency.
const DefaultCurrency = "USD"

var metadataKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Orgs    orgdomain.Service
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	db              *gorm.DB
	log             *zap.Logger
	repo            domain.Repository
	orgs            orgdomain.Service
	genID           *snowflake.Node
	clock           clock.Clock
	defaultCurrency string
	metrics         *metrics.Metrics
}

func NewService(p Params) domain.Service {
	defaultCurrency := strings.TrimSpace(p.Config.DefaultCurrency)
	if defaultCurrency == "" {
		defaultCurrency = DefaultCurrency
	}
	return &service{
		db:              p.DB,
		log:             p.Log.Named("transaction.service"),
		repo:            p.Repo,
		orgs:            p.Orgs,
		genID:           p.GenID,
		clock:           p.Clock,
		defaultCurrency: defaultCurrency,
		metrics:         p.Metrics,
	}
}

func (s *service) Execute(ctx context.Context, req domain.Request) (*domain.Response, error) {
	if req.ActorUserID == 0 {
		return nil, domain.ErrInvalidActor
	}
	if req.OrganizationID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	action := domain.Action(strings.ToUpper(strings.TrimSpace(string(req.Action))))

	ctx, span := tracing.StartSpan(ctx, "hera/transaction", "transaction.execute",
		attribute.String("action", string(action)))
	var (
		resp *domain.Response
		err  error
	)
	switch action {
	case domain.ActionCreate:
		resp, err = s.create(ctx, req)
	case domain.ActionRead:
		resp, err = s.read(ctx, req)
	case domain.ActionUpdate:
		resp, err = s.update(ctx, req)
	case domain.ActionDelete:
		resp, err = s.delete(ctx, req)
	default:
		err = domain.ErrInvalidAction
	}
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	resp.Action = action
	return resp, nil
}

func (s *service) FindByCode(ctx context.Context, orgID snowflake.ID, code string) (*schema.Transaction, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.FindByCode(ctx, orgID, strings.TrimSpace(code))
}

func (s *service) create(ctx context.Context, req domain.Request) (*domain.Response, error) {
	header := req.Transaction
	txnType, ok := schema.NormalizeType(header.TransactionType)
	if !ok {
		return nil, domain.ErrInvalidTransactionType
	}
	txnType = strings.ToLower(txnType)

	code, err := smartcode.Check("transaction.smart_code", header.SmartCode)
	if err != nil {
		return nil, err
	}
	status := schema.TransactionStatusCompleted
	if header.Status != "" {
		if status, err = parseStatus(header.Status); err != nil {
			return nil, err
		}
	}
	lines, err := buildLines(req.Lines)
	if err != nil {
		return nil, err
	}
	journal, debits, err := checkBalance(lines)
	if err != nil {
		return nil, err
	}

	org, err := s.orgs.Get(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	if org.Status != schema.OrganizationStatusActive {
		return nil, orgdomain.ErrInactive
	}
	currencyCode, err := resolveCurrency(header.CurrencyCode, org, s.defaultCurrency)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	txnDate := now
	if header.TransactionDate != nil && !header.TransactionDate.IsZero() {
		txnDate = header.TransactionDate.UTC()
	}
	txnCode := strings.TrimSpace(header.TransactionCode)
	if txnCode == "" {
		txnCode = domain.CodePrefix + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	}
	total := header.TotalAmount
	if total == 0 {
		if journal {
			total = debits
		} else {
			total = sumLineAmounts(lines)
		}
	}

	txn := schema.Transaction{
		ID:                      s.genID.Generate(),
		OrganizationID:          req.OrganizationID,
		TransactionType:         txnType,
		TransactionCode:         txnCode,
		TransactionDate:         txnDate,
		SmartCode:               code,
		SourceEntityID:          nonZero(header.SourceEntityID),
		TargetEntityID:          nonZero(header.TargetEntityID),
		TotalAmount:             total,
		TransactionStatus:       status,
		TransactionCurrencyCode: currencyCode,
		Metadata:                datatypes.JSONMap(header.Metadata),
		CreatedBy:               req.ActorUserID,
		UpdatedBy:               req.ActorUserID,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	for i := range lines {
		lines[i].ID = s.genID.Generate()
		lines[i].OrganizationID = txn.OrganizationID
		lines[i].TransactionID = txn.ID
		lines[i].CreatedBy = req.ActorUserID
		lines[i].UpdatedBy = req.ActorUserID
		lines[i].CreatedAt = now
		lines[i].UpdatedAt = now
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.checkEntities(ctx, repo, txn, lines); err != nil {
			return err
		}
		if err := repo.Insert(ctx, txn); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateCode, txnCode)
			}
			return err
		}
		return repo.InsertLines(ctx, lines)
	})
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, domain.ErrMissingTransactionID
	}

	s.metrics.RecordWrite(ctx, "universal_transactions", "create")
	s.log.Debug("transaction created",
		zap.String("organization_id", txn.OrganizationID.String()),
		zap.String("transaction_id", txn.ID.String()),
		zap.String("transaction_code", txn.TransactionCode),
		zap.Int("lines", len(lines)),
	)
	return &domain.Response{
		TransactionID: txn.ID,
		Transaction:   &domain.Record{Transaction: txn, Lines: lines},
	}, nil
}

func (s *service) read(ctx context.Context, req domain.Request) (*domain.Response, error) {
	if req.Transaction.ID != 0 {
		txn, err := s.repo.FindByID(ctx, req.OrganizationID, req.Transaction.ID)
		if err != nil {
			return nil, err
		}
		if txn == nil {
			return nil, domain.ErrNotFound
		}
		lines, err := s.repo.ListLines(ctx, req.OrganizationID, []snowflake.ID{txn.ID})
		if err != nil {
			return nil, err
		}
		return &domain.Response{
			TransactionID: txn.ID,
			Transaction:   &domain.Record{Transaction: *txn, Lines: lines},
		}, nil
	}
	if code := strings.TrimSpace(req.Transaction.TransactionCode); code != "" {
		txn, err := s.repo.FindByCode(ctx, req.OrganizationID, code)
		if err != nil {
			return nil, err
		}
		if txn == nil {
			return nil, domain.ErrNotFound
		}
		lines, err := s.repo.ListLines(ctx, req.OrganizationID, []snowflake.ID{txn.ID})
		if err != nil {
			return nil, err
		}
		return &domain.Response{
			TransactionID: txn.ID,
			Transaction:   &domain.Record{Transaction: *txn, Lines: lines},
		}, nil
	}

	filters, err := normalizeFilters(req.Options.Filters, req.Transaction.TransactionType)
	if err != nil {
		return nil, err
	}
	after, err := pagination.DecodeCursor(req.Options.PageToken)
	if err != nil {
		return nil, err
	}
	limit := domain.NormalizeLimit(req.Options.Limit)
	rows, err := s.repo.List(ctx, req.OrganizationID, filters, after, limit+1)
	if err != nil {
		return nil, err
	}
	rows, pageInfo, err := pagination.Trim(rows, limit, func(t schema.Transaction) pagination.Cursor {
		return pagination.Cursor{ID: t.ID, At: t.TransactionDate}
	})
	if err != nil {
		return nil, err
	}

	grouped := map[snowflake.ID][]schema.TransactionLine{}
	if req.Options.IncludeLines && len(rows) > 0 {
		ids := make([]snowflake.ID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		lines, err := s.repo.ListLines(ctx, req.OrganizationID, ids)
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			grouped[line.TransactionID] = append(grouped[line.TransactionID], line)
		}
	}
	records := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		lines := grouped[row.ID]
		if lines == nil {
			lines = []schema.TransactionLine{}
		}
		records = append(records, domain.Record{Transaction: row, Lines: lines})
	}
	return &domain.Response{Transactions: records, PageInfo: &pageInfo}, nil
}

func (s *service) update(ctx context.Context, req domain.Request) (*domain.Response, error) {
	header := req.Transaction
	if header.ID == 0 {
		return nil, domain.ErrMissingTransactionID
	}
	var nextStatus schema.TransactionStatus
	if header.Status != "" {
		status, err := parseStatus(header.Status)
		if err != nil {
			return nil, err
		}
		nextStatus = status
	}
	for i, in := range req.Lines {
		if in.LineNumber < 1 || !lineUpdateOnly(in) {
			return nil, fmt.Errorf("%w: lines[%d] may only carry line_number and metadata", domain.ErrLinesImmutable, i)
		}
	}
	if err := s.orgs.EnsureActive(ctx, req.OrganizationID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var (
		updated *schema.Transaction
		lines   []schema.TransactionLine
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, req.OrganizationID, header.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		updates := map[string]any{}
		if nextStatus != "" && nextStatus != current.TransactionStatus {
			if err := checkStatusChange(current.TransactionStatus, nextStatus); err != nil {
				return err
			}
			updates["transaction_status"] = nextStatus
		}
		if header.TransactionDate != nil && !header.TransactionDate.IsZero() {
			if current.TransactionStatus == schema.TransactionStatusPosted || current.TransactionStatus == schema.TransactionStatusVoided {
				return fmt.Errorf("%w: transaction_date is fixed once posted", domain.ErrAlreadyPosted)
			}
			updates["transaction_date"] = header.TransactionDate.UTC()
		}
		if header.Metadata != nil {
			updates["metadata"] = mergeMetadata(current.Metadata, header.Metadata)
		}

		existing, err := repo.ListLines(ctx, req.OrganizationID, []snowflake.ID{current.ID})
		if err != nil {
			return err
		}
		byNumber := make(map[int]schema.TransactionLine, len(existing))
		for _, line := range existing {
			byNumber[line.LineNumber] = line
		}
		for _, in := range req.Lines {
			line, ok := byNumber[in.LineNumber]
			if !ok {
				return fmt.Errorf("%w: line %d does not exist", domain.ErrLinesImmutable, in.LineNumber)
			}
			if in.Metadata == nil {
				continue
			}
			if _, err := repo.UpdateLine(ctx, req.OrganizationID, current.ID, in.LineNumber, map[string]any{
				"metadata":   mergeMetadata(line.Metadata, in.Metadata),
				"updated_by": req.ActorUserID,
				"updated_at": now,
			}); err != nil {
				return err
			}
		}

		if len(updates) > 0 {
			updates["updated_by"] = req.ActorUserID
			updates["updated_at"] = now
			if err := repo.Update(ctx, req.OrganizationID, current.ID, updates); err != nil {
				return err
			}
		}

		if updated, err = repo.FindByID(ctx, req.OrganizationID, current.ID); err != nil {
			return err
		}
		lines, err = repo.ListLines(ctx, req.OrganizationID, []snowflake.ID{current.ID})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWrite(ctx, "universal_transactions", "update")
	return &domain.Response{
		TransactionID: updated.ID,
		Transaction:   &domain.Record{Transaction: *updated, Lines: lines},
	}, nil
}

func (s *service) delete(ctx context.Context, req domain.Request) (*domain.Response, error) {
	if req.Transaction.ID == 0 {
		return nil, domain.ErrMissingTransactionID
	}
	if err := s.orgs.EnsureActive(ctx, req.OrganizationID); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, req.OrganizationID, req.Transaction.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		switch current.TransactionStatus {
		case schema.TransactionStatusDraft:
		case schema.TransactionStatusPosted:
			return domain.ErrAlreadyPosted
		default:
			return domain.ErrNotDraft
		}
		return repo.Delete(ctx, req.OrganizationID, current.ID)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordWrite(ctx, "universal_transactions", "delete")
	s.log.Info("transaction deleted",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("transaction_id", req.Transaction.ID.String()),
	)
	return &domain.Response{TransactionID: req.Transaction.ID, Deleted: true}, nil
}

// checkEntities verifies every referenced entity belongs to the organization.
func (s *service) checkEntities(ctx context.Context, repo domain.Repository, txn schema.Transaction, lines []schema.TransactionLine) error {
	seen := map[snowflake.ID]bool{}
	ids := []snowflake.ID{}
	add := func(id *snowflake.ID) {
		if id == nil || *id == 0 || seen[*id] {
			return
		}
		seen[*id] = true
		ids = append(ids, *id)
	}
	add(txn.SourceEntityID)
	add(txn.TargetEntityID)
	for i := range lines {
		add(lines[i].LineEntityID)
	}
	if len(ids) == 0 {
		return nil
	}
	count, err := repo.CountEntities(ctx, txn.OrganizationID, ids)
	if err != nil {
		return err
	}
	if count != int64(len(ids)) {
		return fmt.Errorf("%w: referenced entity", domain.ErrNotFound)
	}
	return nil
}

func parseStatus(value string) (schema.TransactionStatus, error) {
	status := schema.TransactionStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case schema.TransactionStatusDraft,
		schema.TransactionStatusCompleted,
		schema.TransactionStatusPosted,
		schema.TransactionStatusVoided:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidStatus, value)
}

// checkStatusChange keeps posted transactions immutable except for voiding.
func checkStatusChange(from, to schema.TransactionStatus) error {
	switch from {
	case schema.TransactionStatusPosted:
		if to != schema.TransactionStatusVoided {
			return fmt.Errorf("%w: posted can only become voided", domain.ErrInvalidStatusChange)
		}
	case schema.TransactionStatusVoided:
		return fmt.Errorf("%w: voided is final", domain.ErrInvalidStatusChange)
	}
	return nil
}

func resolveCurrency(requested string, org *schema.Organization, fallback string) (string, error) {
	code := strings.TrimSpace(requested)
	if code == "" {
		if v, ok := org.Settings["currency_code"].(string); ok {
			code = strings.TrimSpace(v)
		}
	}
	if code == "" {
		code = fallback
	}
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidCurrency, code)
	}
	return unit.String(), nil
}

func normalizeFilters(filters domain.Filters, fallbackType string) (domain.Filters, error) {
	if filters.TransactionType == "" {
		filters.TransactionType = fallbackType
	}
	if filters.TransactionType != "" {
		txnType, ok := schema.NormalizeType(filters.TransactionType)
		if !ok {
			return filters, domain.ErrInvalidTransactionType
		}
		filters.TransactionType = strings.ToLower(txnType)
	}
	statuses := make([]string, 0, len(filters.Statuses))
	for _, raw := range filters.Statuses {
		status, err := parseStatus(raw)
		if err != nil {
			return filters, err
		}
		statuses = append(statuses, string(status))
	}
	filters.Statuses = statuses
	for key := range filters.Metadata {
		if !metadataKeyPattern.MatchString(key) {
			return filters, fmt.Errorf("%w: metadata key %q", domain.ErrInvalidFilter, key)
		}
	}
	if filters.DateFrom != nil && filters.DateTo != nil && !filters.DateFrom.Before(*filters.DateTo) {
		return filters, fmt.Errorf("%w: date_from must precede date_to", domain.ErrInvalidFilter)
	}
	return filters, nil
}

func mergeMetadata(current datatypes.JSONMap, patch map[string]any) datatypes.JSONMap {
	merged := datatypes.JSONMap{}
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}

func nonZero(id *snowflake.ID) *snowflake.ID {
	if id == nil || *id == 0 {
		return nil
	}
	return id
}
