package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/clock"
	orgrepository "github.com/smallbiznis/hera/internal/organization/repository"
	orgservice "github.com/smallbiznis/hera/internal/organization/service"
	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/internal/schema/schematest"
	"github.com/smallbiznis/hera/internal/smartcode"
	"github.com/smallbiznis/hera/internal/transaction/domain"
	"github.com/smallbiznis/hera/internal/transaction/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	actorID  = snowflake.ID(7)
	saleCode = "HERA.SALON.SALE.TXN.RETAIL.V1"
	lineCode = "HERA.SALON.SALE.LINE.SERVICE.V1"
	jeCode   = "HERA.FINANCE.GL.JOURNAL.DAILY.V1"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	svc   domain.Service
	orgA  snowflake.ID
	orgB  snowflake.ID
	clock *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := schematest.Open(t)
	node := schematest.Node(t)
	clk := clock.NewFakeClock(time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	orgs := orgservice.NewService(orgservice.Params{DB: db, Log: log, Repo: orgrepository.NewRepository(db), GenID: node, Clock: clk})
	svc := NewService(Params{
		DB:    db,
		Log:   log,
		Repo:  repository.NewRepository(db),
		Orgs:  orgs,
		GenID: node,
		Clock: clk,
	})
	return &fixture{
		db:    db,
		node:  node,
		svc:   svc,
		orgA:  schematest.SeedOrganization(t, db, node, "org-a"),
		orgB:  schematest.SeedOrganization(t, db, node, "org-b"),
		clock: clk,
	}
}

func (f *fixture) countRows(t *testing.T) (headers, lines int64) {
	t.Helper()
	require.NoError(t, f.db.Model(&schema.Transaction{}).Count(&headers).Error)
	require.NoError(t, f.db.Model(&schema.TransactionLine{}).Count(&lines).Error)
	return headers, lines
}

func int64p(v int64) *int64 { return &v }

func saleLine(number int, amount int64) domain.LineInput {
	return domain.LineInput{LineNumber: number, LineType: "service", LineAmount: amount, SmartCode: lineCode}
}

func (f *fixture) createSale(t *testing.T, orgID snowflake.ID, status string, lines ...domain.LineInput) *domain.Response {
	t.Helper()
	resp, err := f.svc.Execute(context.Background(), domain.Request{
		Action:         domain.ActionCreate,
		ActorUserID:    actorID,
		OrganizationID: orgID,
		Transaction:    domain.Header{TransactionType: "sale", SmartCode: saleCode, Status: status, CurrencyCode: "AED"},
		Lines:          lines,
	})
	require.NoError(t, err)
	return resp
}

func TestCreateAndReadBackSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := schematest.SeedEntity(t, f.db, f.node, f.orgA, "CUSTOMER", "Jane")

	created, err := f.svc.Execute(ctx, domain.Request{
		Action:         domain.ActionCreate,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Transaction: domain.Header{
			TransactionType: "sale",
			SmartCode:       saleCode,
			SourceEntityID:  &customer,
		},
		Lines: []domain.LineInput{{LineType: "service", LineAmount: 8599, SmartCode: lineCode}},
	})
	require.NoError(t, err)
	require.NotZero(t, created.TransactionID)
	assert.True(t, strings.HasPrefix(created.Transaction.TransactionCode, domain.CodePrefix))
	assert.Equal(t, schema.TransactionStatusCompleted, created.Transaction.TransactionStatus)
	assert.Equal(t, DefaultCurrency, created.Transaction.TransactionCurrencyCode)

	read, err := f.svc.Execute(ctx, domain.Request{
		Action:         domain.ActionRead,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Transaction:    domain.Header{ID: created.TransactionID},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8599), read.Transaction.TotalAmount)
	require.Len(t, read.Transaction.Lines, 1)
	assert.Equal(t, int64(8599), read.Transaction.Lines[0].LineAmount)
	assert.Equal(t, 1, read.Transaction.Lines[0].LineNumber)
	require.NotNil(t, read.Transaction.SourceEntityID)
	assert.Equal(t, customer, *read.Transaction.SourceEntityID)
}

func TestCreateRejectsGapInLineNumbers(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Execute(context.Background(), domain.Request{
		Action:         domain.ActionCreate,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Transaction:    domain.Header{TransactionType: "sale", SmartCode: saleCode},
		Lines:          []domain.LineInput{saleLine(1, 100), saleLine(3, 100)},
	})
	require.ErrorIs(t, err, domain.ErrInvalidLineSequence)

	headers, lines := f.countRows(t)
	assert.Zero(t, headers)
	assert.Zero(t, lines)
}

func TestCreateRejectsUnbalancedJournal(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Execute(context.Background(), domain.Request{
		Action:         domain.ActionCreate,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Transaction:    domain.Header{TransactionType: "journal_entry", SmartCode: jeCode},
		Lines: []domain.LineInput{
			{LineNumber: 1, LineType: "gl", DebitAmount: int64p(1000), SmartCode: jeCode},
			{LineNumber: 2, LineType: "gl", CreditAmount: int64p(900), SmartCode: jeCode},
		},
	})
	require.ErrorIs(t, err, domain.ErrUnbalancedJournal)

	headers, lines := f.countRows(t)
	assert.Zero(t, headers)
	assert.Zero(t, lines)
}

func TestCreateBalancedJournalTotalsDebits(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Execute(context.Background(), domain.Request{
		Action:         domain.ActionCreate,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Transaction:    domain.Header{TransactionType: "JOURNAL_ENTRY", SmartCode: jeCode, CurrencyCode: "aed"},
		Lines: []domain.LineInput{
			{LineNumber: 2, LineType: "gl", CreditAmount: int64p(1000), SmartCode: jeCode},
			{LineNumber: 1, LineType: "gl", DebitAmount: int64p(1000), SmartCode: jeCode},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "journal_entry", resp.Transaction.TransactionType)
	assert.Equal(t, "AED", resp.Transaction.TransactionCurrencyCode)
	assert.Equal(t, int64(1000), resp.Transaction.TotalAmount)
	require.Len(t, resp.Transaction.Lines, 2)
	assert.Equal(t, 1, resp.Transaction.Lines[0].LineNumber)
	require.NotNil(t, resp.Transaction.Lines[0].DebitAmount)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := func() domain.Request {
		return domain.Request{
			Action:         domain.ActionCreate,
			ActorUserID:    actorID,
			OrganizationID: f.orgA,
			Transaction:    domain.Header{TransactionType: "sale", SmartCode: saleCode},
			Lines:          []domain.LineInput{saleLine(1, 100)},
		}
	}

	req := base()
	req.Transaction.SmartCode = "HERA.BAD"
	_, err := f.svc.Execute(ctx, req)
	assert.ErrorIs(t, err, smartcode.ErrInvalid)

	req = base()
	req.Lines[0].SmartCode = "sale-line"
	_, err = f.svc.Execute(ctx, req)
	assert.ErrorIs(t, err, smartcode.ErrInvalid)

	req = base()
	req.Transaction.CurrencyCode = "ZZZ"
	_, err = f.svc.Execute(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)

	req = base()
	foreign := schematest.SeedEntity(t, f.db, f.node, f.orgB, "CUSTOMER", "Other")
	req.Transaction.SourceEntityID = &foreign
	_, err = f.svc.Execute(ctx, req)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	headers, _ := f.countRows(t)
	assert.Zero(t, headers)
}

func TestDuplicateTransactionCode(t *testing.T) {
	f := newFixture(t)
	req := domain.Request{
		Action:         domain.ActionCreate,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Transaction:    domain.Header{TransactionType: "sale", TransactionCode: "SALE-1", SmartCode: saleCode},
	}
	_, err := f.svc.Execute(context.Background(), req)
	require.NoError(t, err)
	_, err = f.svc.Execute(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)

	req.OrganizationID = f.orgB
	_, err = f.svc.Execute(context.Background(), req)
	assert.NoError(t, err)
}

func TestReadEmptyTransactionHasEmptyLines(t *testing.T) {
	f := newFixture(t)
	created := f.createSale(t, f.orgA, "draft")

	read, err := f.svc.Execute(context.Background(), domain.Request{
		Action:         domain.ActionRead,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Transaction:    domain.Header{ID: created.TransactionID},
	})
	require.NoError(t, err)
	require.NotNil(t, read.Transaction.Lines)
	assert.Empty(t, read.Transaction.Lines)

	_, err = f.svc.Execute(context.Background(), domain.Request{
		Action:         domain.ActionRead,
		ActorUserID:    actorID,
		OrganizationID: f.orgB,
		Transaction:    domain.Header{ID: created.TransactionID},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	for i, branch := range []string{"b1", "b1", "b2", "b1"} {
		date := day.Add(time.Duration(i+1) * time.Hour)
		_, err := f.svc.Execute(ctx, domain.Request{
			Action:         domain.ActionCreate,
			ActorUserID:    actorID,
			OrganizationID: f.orgA,
			Transaction: domain.Header{
				TransactionType: "sale",
				SmartCode:       saleCode,
				TransactionDate: &date,
				Metadata:        map[string]any{"branch_id": branch},
			},
			Lines: []domain.LineInput{saleLine(1, int64(100*(i+1)))},
		})
		require.NoError(t, err)
	}
	dayEnd := day.Add(24 * time.Hour)
	req := domain.Request{
		Action:         domain.ActionRead,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Options: domain.Options{
			IncludeLines: true,
			Limit:        2,
			Filters: domain.Filters{
				TransactionType: "sale",
				Statuses:        []string{"completed"},
				DateFrom:        &day,
				DateTo:          &dayEnd,
				Metadata:        map[string]string{"branch_id": "b1"},
			},
		},
	}

	first, err := f.svc.Execute(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Transactions, 2)
	require.True(t, first.PageInfo.HasMore)
	assert.Equal(t, int64(100), first.Transactions[0].TotalAmount)
	assert.Equal(t, int64(200), first.Transactions[1].TotalAmount)
	require.Len(t, first.Transactions[0].Lines, 1)

	req.Options.PageToken = first.PageInfo.NextPageToken
	second, err := f.svc.Execute(ctx, req)
	require.NoError(t, err)
	require.Len(t, second.Transactions, 1)
	assert.Equal(t, int64(400), second.Transactions[0].TotalAmount)
	assert.False(t, second.PageInfo.HasMore)

	req.Options.Filters.Metadata = map[string]string{"branch_id') OR 1=1 --": "x"}
	_, err = f.svc.Execute(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)
}

func TestUpdateHeaderAndLineMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createSale(t, f.orgA, "", saleLine(1, 500), saleLine(2, 250))

	f.clock.Advance(time.Minute)
	resp, err := f.svc.Execute(ctx, domain.Request{
		Action:         domain.ActionUpdate,
		ActorUserID:    99,
		OrganizationID: f.orgA,
		Transaction:    domain.Header{ID: created.TransactionID, Status: "posted", Metadata: map[string]any{"note": "ok"}},
		Lines:          []domain.LineInput{{LineNumber: 2, Metadata: map[string]any{"stylist": "amy"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, schema.TransactionStatusPosted, resp.Transaction.TransactionStatus)
	assert.Equal(t, "ok", resp.Transaction.Metadata["note"])
	assert.Equal(t, snowflake.ID(99), resp.Transaction.UpdatedBy)
	require.Len(t, resp.Transaction.Lines, 2)
	assert.Equal(t, "amy", resp.Transaction.Lines[1].Metadata["stylist"])
	assert.Equal(t, int64(250), resp.Transaction.Lines[1].LineAmount)

	_, err = f.svc.Execute(ctx, domain.Request{
		Action:         domain.ActionUpdate,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Transaction:    domain.Header{ID: created.TransactionID, Status: "draft"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatusChange)

	resp, err = f.svc.Execute(ctx, domain.Request{
		Action:         domain.ActionUpdate,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Transaction:    domain.Header{ID: created.TransactionID, Status: "voided"},
	})
	require.NoError(t, err)
	assert.Equal(t, schema.TransactionStatusVoided, resp.Transaction.TransactionStatus)
}

func TestUpdateRejectsLineChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.createSale(t, f.orgA, "", saleLine(1, 500))

	_, err := f.svc.Execute(ctx, domain.Request{
		Action:         domain.ActionUpdate,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Transaction:    domain.Header{ID: created.TransactionID},
		Lines:          []domain.LineInput{{LineNumber: 1, LineAmount: 900}},
	})
	assert.ErrorIs(t, err, domain.ErrLinesImmutable)

	_, err = f.svc.Execute(ctx, domain.Request{
		Action:         domain.ActionUpdate,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
		Transaction:    domain.Header{ID: created.TransactionID},
		Lines:          []domain.LineInput{{LineNumber: 2, Metadata: map[string]any{"x": 1}}},
	})
	assert.ErrorIs(t, err, domain.ErrLinesImmutable)

	_, err = f.svc.Execute(ctx, domain.Request{
		Action:         domain.ActionUpdate,
		ActorUserID:    actorID,
		OrganizationID: f.orgA,
	})
	assert.ErrorIs(t, err, domain.ErrMissingTransactionID)
}

func TestDeleteRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deleteReq := func(id snowflake.ID) domain.Request {
		return domain.Request{
			Action:         domain.ActionDelete,
			ActorUserID:    actorID,
			OrganizationID: f.orgA,
			Transaction:    domain.Header{ID: id},
		}
	}

	posted := f.createSale(t, f.orgA, "posted", saleLine(1, 100))
	_, err := f.svc.Execute(ctx, deleteReq(posted.TransactionID))
	assert.ErrorIs(t, err, domain.ErrAlreadyPosted)

	completed := f.createSale(t, f.orgA, "completed", saleLine(1, 100))
	_, err = f.svc.Execute(ctx, deleteReq(completed.TransactionID))
	assert.ErrorIs(t, err, domain.ErrNotDraft)

	draft := f.createSale(t, f.orgA, "draft", saleLine(1, 100))
	resp, err := f.svc.Execute(ctx, deleteReq(draft.TransactionID))
	require.NoError(t, err)
	assert.True(t, resp.Deleted)

	var lines int64
	require.NoError(t, f.db.Model(&schema.TransactionLine{}).Where("transaction_id = ?", draft.TransactionID).Count(&lines).Error)
	assert.Zero(t, lines)

	_, err = f.svc.Execute(ctx, deleteReq(draft.TransactionID))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindByCode(t *testing.T) {
	f := newFixture(t)
	created := f.createSale(t, f.orgA, "")

	found, err := f.svc.FindByCode(context.Background(), f.orgA, created.Transaction.TransactionCode)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.TransactionID, found.ID)

	found, err = f.svc.FindByCode(context.Background(), f.orgB, created.Transaction.TransactionCode)
	require.NoError(t, err)
	assert.Nil(t, found)
}
