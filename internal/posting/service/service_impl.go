package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/clock"
	"github.com/smallbiznis/hera/internal/config"
	entitydomain "github.com/smallbiznis/hera/internal/entity/domain"
	"github.com/smallbiznis/hera/internal/observability/metrics"
	"github.com/smallbiznis/hera/internal/observability/tracing"
	"github.com/smallbiznis/hera/internal/posting/domain"
	"github.com/smallbiznis/hera/internal/schema"
	transactiondomain "github.com/smallbiznis/hera/internal/transaction/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Entities     entitydomain.Service
	Transactions transactiondomain.Service
	Clock        clock.Clock
	Settings     *config.PostingConfigHolder `optional:"true"`
	Metrics      *metrics.Metrics            `optional:"true"`
}

type service struct {
	log          *zap.Logger
	entities     entitydomain.Service
	transactions transactiondomain.Service
	clock        clock.Clock
	settings     *config.PostingConfigHolder
	metrics      *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		log:          p.Log.Named("posting.service"),
		entities:     p.Entities,
		transactions: p.Transactions,
		clock:        p.Clock,
		settings:     p.Settings,
		metrics:      p.Metrics,
	}
}

func (s *service) Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.Summary, error) {
	if req.ActorUserID == 0 {
		return nil, domain.ErrInvalidActor
	}
	if req.OrganizationID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if req.BranchID == 0 {
		return nil, domain.ErrInvalidBranch
	}
	if req.Day.IsZero() {
		return nil, domain.ErrInvalidDay
	}
	loc := req.Location
	if loc == nil {
		var err error
		if loc, err = s.location(nil); err != nil {
			return nil, err
		}
	}
	start, end := domain.DayWindow(req.Day, loc)

	summary := &domain.Summary{
		OrganizationID: req.OrganizationID,
		BranchID:       req.BranchID,
		BusinessDate:   req.Day.Format(domain.DayLayout),
		Timezone:       loc.String(),
		Totals:         map[domain.Category]int64{},
		TransactionIDs: []snowflake.ID{},
	}

	summary.ByCurrency = map[string]map[domain.Category]int64{}
	settings := s.settings.Get()
	for _, saleType := range settings.SaleTypes {
		if err := s.summarizeType(ctx, req, saleType, settings.QualifyingStatuses, start, end, summary); err != nil {
			return summary, err
		}
	}
	return summary, settleCurrency(summary)
}

// settleCurrency folds a single-currency day into Totals. A mixed day keeps
// the per-currency breakdown and is refused, since no rate is known.
func settleCurrency(summary *domain.Summary) error {
	switch len(summary.ByCurrency) {
	case 0:
		summary.ByCurrency = nil
		return nil
	case 1:
		for currency, totals := range summary.ByCurrency {
			summary.Currency = currency
			summary.Totals = totals
		}
		summary.ByCurrency = nil
		return nil
	}
	currencies := make([]string, 0, len(summary.ByCurrency))
	for currency := range summary.ByCurrency {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)
	return fmt.Errorf("%w: %s on %s", domain.ErrCurrencyMismatch, strings.Join(currencies, ", "), summary.BusinessDate)
}

func (s *service) summarizeType(ctx context.Context, req domain.SummaryRequest, saleType string, statuses []string, start, end time.Time, summary *domain.Summary) error {
	pageToken := ""
	for {
		resp, err := s.transactions.Execute(ctx, transactiondomain.Request{
			Action:         transactiondomain.ActionRead,
			ActorUserID:    req.ActorUserID,
			OrganizationID: req.OrganizationID,
			Options: transactiondomain.Options{
				IncludeLines: true,
				Limit:        transactiondomain.MaxLimit,
				PageToken:    pageToken,
				Filters: transactiondomain.Filters{
					TransactionType: saleType,
					Statuses:        statuses,
					DateFrom:        &start,
					DateTo:          &end,
					Metadata:        map[string]string{"branch_id": req.BranchID.String()},
				},
			},
		})
		if err != nil {
			return err
		}
		for _, txn := range resp.Transactions {
			totals, ok := summary.ByCurrency[txn.TransactionCurrencyCode]
			if !ok {
				totals = map[domain.Category]int64{}
				summary.ByCurrency[txn.TransactionCurrencyCode] = totals
			}
			for _, line := range txn.Lines {
				if category, ok := categorize(line); ok {
					totals[category] += abs(line.LineAmount)
				}
			}
			summary.TransactionCount++
			summary.TransactionIDs = append(summary.TransactionIDs, txn.ID)
		}
		if resp.PageInfo == nil || !resp.PageInfo.HasMore {
			return nil
		}
		pageToken = resp.PageInfo.NextPageToken
	}
}

// categorize maps a sale line to its summary category. Other line types do
// not reach the ledger.
func categorize(line schema.TransactionLine) (domain.Category, bool) {
	switch line.LineType {
	case schema.LineTypeService:
		return domain.CategoryServiceRevenue, true
	case schema.LineTypeProduct:
		return domain.CategoryProductRevenue, true
	case schema.LineTypeTax:
		if base, _ := line.Metadata["tax_base"].(string); strings.EqualFold(base, schema.LineTypeProduct) {
			return domain.CategoryVATProducts, true
		}
		return domain.CategoryVATServices, true
	case schema.LineTypeTip:
		return domain.CategoryTips, true
	case schema.LineTypeDiscount:
		return domain.CategoryDiscounts, true
	}
	return "", false
}

func (s *service) ResolvePolicy(ctx context.Context, req domain.PolicyRequest) (*domain.Policy, error) {
	if req.ActorUserID == 0 {
		return nil, domain.ErrInvalidActor
	}
	if req.OrganizationID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	codes := []string{domain.DefaultPolicyCode}
	if req.BranchID != 0 {
		codes = []string{req.BranchID.String(), domain.DefaultPolicyCode}
	}
	for _, code := range codes {
		record, err := s.findByCode(ctx, req.ActorUserID, req.OrganizationID, domain.PolicyEntityType, code, true)
		if err != nil {
			return nil, err
		}
		if record == nil {
			continue
		}
		policy, err := parsePolicy(record)
		if err != nil {
			return nil, err
		}
		if err := s.checkAccounts(ctx, req.ActorUserID, req.OrganizationID, policy); err != nil {
			return nil, err
		}
		return policy, nil
	}
	return nil, domain.ErrNoPolicy
}

func (s *service) PostDaily(ctx context.Context, req domain.PostRequest) (*domain.Result, error) {
	if req.ActorUserID == 0 {
		return nil, domain.ErrInvalidActor
	}
	if req.OrganizationID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if req.BranchID == 0 {
		return nil, domain.ErrInvalidBranch
	}
	if strings.TrimSpace(req.Day) == "" {
		req.Day = s.clock.Now().AddDate(0, 0, -1).Format(domain.DayLayout)
	}
	day, err := time.Parse(domain.DayLayout, strings.TrimSpace(req.Day))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDay, req.Day)
	}

	ctx, span := tracing.StartSpan(ctx, "hera/posting", "posting.post_daily",
		attribute.String("branch_id", req.BranchID.String()),
		attribute.String("business_date", req.Day))
	result, err := s.postDaily(ctx, req, day)
	tracing.EndSpan(span, err)

	s.metrics.RecordPosting(ctx, outcomeOf(err))
	if err != nil {
		s.log.Warn("daily posting failed",
			zap.String("organization_id", req.OrganizationID.String()),
			zap.String("branch_id", req.BranchID.String()),
			zap.String("business_date", req.Day),
			zap.Error(err),
		)
		return nil, err
	}
	s.log.Info("daily posting created",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("branch_id", req.BranchID.String()),
		zap.String("business_date", req.Day),
		zap.String("journal_id", result.JournalID.String()),
		zap.Int64("amount", result.DebitTotal),
	)
	return result, nil
}

func (s *service) postDaily(ctx context.Context, req domain.PostRequest, day time.Time) (*domain.Result, error) {
	if _, err := s.entities.Execute(ctx, entitydomain.Request{
		Action:         entitydomain.ActionRead,
		ActorUserID:    req.ActorUserID,
		OrganizationID: req.OrganizationID,
		Entity:         entitydomain.EntityInput{ID: req.BranchID},
	}); err != nil {
		return nil, err
	}

	policy, policyErr := s.ResolvePolicy(ctx, domain.PolicyRequest{
		ActorUserID:    req.ActorUserID,
		OrganizationID: req.OrganizationID,
		BranchID:       req.BranchID,
	})
	if policyErr != nil && !errors.Is(policyErr, domain.ErrNoPolicy) {
		return nil, policyErr
	}
	loc, err := s.location(policy)
	if err != nil {
		return nil, err
	}

	summary, err := s.Summarize(ctx, domain.SummaryRequest{
		ActorUserID:    req.ActorUserID,
		OrganizationID: req.OrganizationID,
		BranchID:       req.BranchID,
		Day:            day,
		Location:       loc,
	})
	if err != nil {
		return nil, &domain.Error{Err: err, Summary: summary}
	}
	if summary.Empty() {
		return nil, &domain.Error{Err: domain.ErrNoSalesFound, Summary: summary}
	}
	if policyErr != nil {
		return nil, &domain.Error{Err: policyErr, Summary: summary}
	}

	code := domain.JournalCode(req.BranchID, day)
	existing, err := s.transactions.FindByCode(ctx, req.OrganizationID, code)
	if err != nil {
		return nil, &domain.Error{Err: err, Summary: summary}
	}
	if existing != nil {
		return nil, &domain.Error{Err: fmt.Errorf("%w: %s", domain.ErrAlreadyPosted, code), Summary: summary}
	}

	journal, err := domain.BuildJournal(summary, policy, day, loc)
	if err != nil {
		return nil, &domain.Error{Err: err, Summary: summary}
	}

	resp, err := s.transactions.Execute(ctx, journalRequest(req, policy, summary, journal))
	if errors.Is(err, transactiondomain.ErrDuplicateCode) {
		return nil, &domain.Error{Err: fmt.Errorf("%w: %s", domain.ErrAlreadyPosted, code), Summary: summary}
	}
	if err != nil {
		return nil, &domain.Error{Err: err, Summary: summary}
	}

	return &domain.Result{
		JournalID:       resp.TransactionID,
		TransactionCode: journal.Code,
		DebitTotal:      journal.DebitTotal,
		CreditTotal:     journal.CreditTotal,
		Summary:         summary,
	}, nil
}

// location prefers the policy timezone over the configured default.
func (s *service) location(policy *domain.Policy) (*time.Location, error) {
	if policy != nil && policy.Timezone != "" {
		return policy.Location()
	}
	loc, err := time.LoadLocation(s.settings.Get().Timezone)
	if err != nil {
		return nil, domain.ErrInvalidTimezone
	}
	return loc, nil
}

func journalRequest(req domain.PostRequest, policy *domain.Policy, summary *domain.Summary, journal *domain.Journal) transactiondomain.Request {
	sources := make([]string, 0, len(summary.TransactionIDs))
	for _, id := range summary.TransactionIDs {
		sources = append(sources, id.String())
	}
	lines := make([]transactiondomain.LineInput, 0, len(journal.Lines))
	for i, line := range journal.Lines {
		account := line.AccountID
		amount := line.Amount
		in := transactiondomain.LineInput{
			LineNumber:   i + 1,
			LineType:     schema.LineTypeGL,
			LineEntityID: &account,
			LineAmount:   amount,
			SmartCode:    domain.JournalLineSmartCode,
			Metadata:     map[string]any{"category": string(line.Category)},
		}
		if line.Direction == domain.DirectionDebit {
			in.DebitAmount = &amount
		} else {
			in.CreditAmount = &amount
		}
		lines = append(lines, in)
	}

	branch := req.BranchID
	date := journal.Date
	return transactiondomain.Request{
		Action:         transactiondomain.ActionCreate,
		ActorUserID:    req.ActorUserID,
		OrganizationID: req.OrganizationID,
		Transaction: transactiondomain.Header{
			TransactionType: schema.TransactionTypeJournalEntry,
			TransactionCode: journal.Code,
			TransactionDate: &date,
			SmartCode:       domain.JournalSmartCode,
			SourceEntityID:  &branch,
			TotalAmount:     journal.DebitTotal,
			Status:          string(schema.TransactionStatusPosted),
			CurrencyCode:    journal.Currency,
			Metadata: map[string]any{
				"branch_id":              branch.String(),
				"business_date":          journal.BusinessDate,
				"timezone":               summary.Timezone,
				"policy_entity_id":       policy.EntityID.String(),
				"source_transaction_ids": sources,
			},
		},
		Lines: lines,
	}
}

func (s *service) ApplyPolicy(ctx context.Context, req domain.ApplyPolicyRequest) (*domain.Policy, error) {
	if req.ActorUserID == 0 {
		return nil, domain.ErrInvalidActor
	}
	if req.OrganizationID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	file := req.File
	if err := validatePolicyFile(file); err != nil {
		return nil, err
	}

	code := domain.DefaultPolicyCode
	name := "Default posting policy"
	if branch := strings.TrimSpace(file.Branch); branch != "" {
		branchID, err := snowflake.ParseString(branch)
		if err != nil || branchID == 0 {
			return nil, fmt.Errorf("%w: branch %q", domain.ErrInvalidBranch, branch)
		}
		if _, err := s.entities.Execute(ctx, entitydomain.Request{
			Action:         entitydomain.ActionRead,
			ActorUserID:    req.ActorUserID,
			OrganizationID: req.OrganizationID,
			Entity:         entitydomain.EntityInput{ID: branchID},
		}); err != nil {
			return nil, err
		}
		code = branchID.String()
		name = "Posting policy for branch " + code
	}

	policy := &domain.Policy{
		Code:     code,
		Accounts: map[domain.Category]snowflake.ID{},
		Timezone: strings.TrimSpace(file.Timezone),
	}
	clearing, err := s.glAccount(ctx, req, file.ClearingAccount)
	if err != nil {
		return nil, err
	}
	policy.ClearingAccount = clearing
	fields := []entitydomain.DynamicFieldInput{policyField(domain.ClearingField, clearing.String())}
	for _, category := range domain.Categories {
		glCode, ok := file.Accounts[category]
		if !ok {
			continue
		}
		account, err := s.glAccount(ctx, req, glCode)
		if err != nil {
			return nil, err
		}
		policy.Accounts[category] = account
		fields = append(fields, policyField(domain.AccountField(category), account.String()))
	}
	if policy.Timezone != "" {
		fields = append(fields, policyField(domain.TimezoneField, policy.Timezone))
	}

	existing, err := s.findByCode(ctx, req.ActorUserID, req.OrganizationID, domain.PolicyEntityType, code, false)
	if err != nil {
		return nil, err
	}
	entityReq := entitydomain.Request{
		ActorUserID:    req.ActorUserID,
		OrganizationID: req.OrganizationID,
		DynamicFields:  fields,
	}
	if existing == nil {
		policyCode := code
		entityReq.Action = entitydomain.ActionCreate
		entityReq.Entity = entitydomain.EntityInput{
			EntityType: domain.PolicyEntityType,
			EntityName: name,
			EntityCode: &policyCode,
			SmartCode:  domain.PolicySmartCode,
		}
	} else {
		entityReq.Action = entitydomain.ActionUpdate
		entityReq.Entity = entitydomain.EntityInput{ID: existing.ID}
	}
	resp, err := s.entities.Execute(ctx, entityReq)
	if err != nil {
		return nil, err
	}
	policy.EntityID = resp.EntityID

	s.log.Info("posting policy applied",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("policy_code", code),
		zap.Int("accounts", len(policy.Accounts)),
	)
	return policy, nil
}

func (s *service) glAccount(ctx context.Context, req domain.ApplyPolicyRequest, code string) (snowflake.ID, error) {
	code = strings.TrimSpace(code)
	record, err := s.findByCode(ctx, req.ActorUserID, req.OrganizationID, domain.GLAccountEntityType, code, false)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, fmt.Errorf("%w: gl account %q not found", domain.ErrInvalidPolicy, code)
	}
	return record.ID, nil
}

func (s *service) findByCode(ctx context.Context, actorID, orgID snowflake.ID, entityType, code string, withFields bool) (*entitydomain.Record, error) {
	resp, err := s.entities.Execute(ctx, entitydomain.Request{
		Action:         entitydomain.ActionRead,
		ActorUserID:    actorID,
		OrganizationID: orgID,
		Options: entitydomain.Options{
			IncludeDynamic: withFields,
			Limit:          1,
			Filters: entitydomain.Filters{
				EntityType: entityType,
				EntityCode: code,
				Status:     schema.EntityStatusActive,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Entities) == 0 {
		return nil, nil
	}
	return &resp.Entities[0], nil
}

// checkAccounts verifies every account named by the policy exists in the
// organization.
func (s *service) checkAccounts(ctx context.Context, actorID, orgID snowflake.ID, policy *domain.Policy) error {
	ids := []snowflake.ID{}
	if policy.ClearingAccount != 0 {
		ids = append(ids, policy.ClearingAccount)
	}
	for _, category := range domain.Categories {
		if id := policy.Accounts[category]; id != 0 {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		_, err := s.entities.Execute(ctx, entitydomain.Request{
			Action:         entitydomain.ActionRead,
			ActorUserID:    actorID,
			OrganizationID: orgID,
			Entity:         entitydomain.EntityInput{ID: id},
		})
		if errors.Is(err, entitydomain.ErrNotFound) {
			return fmt.Errorf("%w: account %s not found", domain.ErrNoPolicy, id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func parsePolicy(record *entitydomain.Record) (*domain.Policy, error) {
	policy := &domain.Policy{
		EntityID: record.ID,
		Accounts: map[domain.Category]snowflake.ID{},
	}
	if record.EntityCode != nil {
		policy.Code = *record.EntityCode
	}
	for _, field := range record.DynamicFields {
		if field.FieldName == domain.TimezoneField {
			if field.ValueText != nil {
				policy.Timezone = strings.TrimSpace(*field.ValueText)
			}
			continue
		}
		id, ok := accountID(field)
		if !ok {
			continue
		}
		if field.FieldName == domain.ClearingField {
			policy.ClearingAccount = id
			continue
		}
		for _, category := range domain.Categories {
			if field.FieldName == domain.AccountField(category) {
				policy.Accounts[category] = id
			}
		}
	}
	if _, err := policy.Location(); err != nil {
		return nil, fmt.Errorf("%w: timezone %q", domain.ErrNoPolicy, policy.Timezone)
	}
	return policy, nil
}

func accountID(field schema.DynamicField) (snowflake.ID, bool) {
	switch {
	case field.ValueText != nil:
		id, err := strconv.ParseInt(strings.TrimSpace(*field.ValueText), 10, 64)
		return snowflake.ID(id), err == nil && id > 0
	case field.ValueNumber != nil:
		return snowflake.ID(int64(*field.ValueNumber)), *field.ValueNumber > 0
	}
	return 0, false
}

func validatePolicyFile(file domain.PolicyFile) error {
	if strings.TrimSpace(file.ClearingAccount) == "" {
		return fmt.Errorf("%w: clearing_account is required", domain.ErrInvalidPolicy)
	}
	known := map[domain.Category]bool{}
	for _, c := range domain.Categories {
		known[c] = true
	}
	for category, code := range file.Accounts {
		if !known[category] {
			return fmt.Errorf("%w: unknown category %q", domain.ErrInvalidPolicy, category)
		}
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("%w: %s has no account", domain.ErrInvalidPolicy, category)
		}
	}
	if tz := strings.TrimSpace(file.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("%w: timezone %q", domain.ErrInvalidPolicy, tz)
		}
	}
	return nil
}

func policyField(name, value string) entitydomain.DynamicFieldInput {
	return entitydomain.DynamicFieldInput{
		FieldName: name,
		FieldType: schema.FieldTypeText,
		Value:     value,
		SmartCode: domain.PolicyFieldSmartCode,
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.PostingOutcomePosted
	case errors.Is(err, domain.ErrAlreadyPosted):
		return metrics.PostingOutcomeAlreadyPosted
	case errors.Is(err, domain.ErrNoSalesFound):
		return metrics.PostingOutcomeNoSales
	case errors.Is(err, domain.ErrNoPolicy), errors.Is(err, domain.ErrInvalidPolicy):
		return metrics.PostingOutcomeNoPolicy
	default:
		return metrics.PostingOutcomeFailed
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
