package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() *Policy {
	return &Policy{
		Code:            DefaultPolicyCode,
		ClearingAccount: 100,
		Accounts: map[Category]snowflake.ID{
			CategoryServiceRevenue: 400,
			CategoryProductRevenue: 410,
			CategoryVATServices:    220,
			CategoryVATProducts:    221,
			CategoryTips:           230,
			CategoryDiscounts:      450,
		},
	}
}

func TestBuildJournalBalances(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	summary := &Summary{
		BranchID:         55,
		Currency:         "AED",
		TransactionCount: 3,
		Totals: map[Category]int64{
			CategoryServiceRevenue: 300,
			CategoryVATServices:    15,
			CategoryTips:           20,
			CategoryDiscounts:      10,
		},
	}

	journal, err := BuildJournal(summary, testPolicy(), day, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "JE-DAILY-55-20240610", journal.Code)
	assert.Equal(t, int64(335), journal.DebitTotal)
	assert.Equal(t, int64(335), journal.CreditTotal)
	require.Len(t, journal.Lines, 5)
	assert.Equal(t, snowflake.ID(100), journal.Lines[0].AccountID)
	assert.Equal(t, int64(325), journal.Lines[0].Amount)
	assert.Equal(t, CategoryServiceRevenue, journal.Lines[1].Category)
	assert.Equal(t, DirectionDebit, journal.Lines[4].Direction)
}

func TestBuildJournalPinsEndOfBusinessDay(t *testing.T) {
	dubai := time.FixedZone("GST", 4*3600)
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	summary := &Summary{TransactionCount: 1, Totals: map[Category]int64{CategoryServiceRevenue: 100}}

	journal, err := BuildJournal(summary, testPolicy(), day, dubai)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 10, 19, 59, 59, 0, time.UTC), journal.Date)
	assert.Equal(t, "2024-06-10", journal.BusinessDate)
}

func TestBuildJournalFailures(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	_, err := BuildJournal(&Summary{Totals: map[Category]int64{}}, testPolicy(), day, time.UTC)
	assert.ErrorIs(t, err, ErrNoSalesFound)

	zero := &Summary{TransactionCount: 2, Totals: map[Category]int64{CategoryServiceRevenue: 0}}
	assert.True(t, zero.Empty())
	_, err = BuildJournal(zero, testPolicy(), day, time.UTC)
	assert.ErrorIs(t, err, ErrNoSalesFound)

	summary := &Summary{TransactionCount: 1, Totals: map[Category]int64{CategoryProductRevenue: 100}}
	_, err = BuildJournal(summary, nil, day, time.UTC)
	assert.ErrorIs(t, err, ErrNoPolicy)

	policy := testPolicy()
	delete(policy.Accounts, CategoryProductRevenue)
	_, err = BuildJournal(summary, policy, day, time.UTC)
	assert.ErrorIs(t, err, ErrNoPolicy)

	summary = &Summary{TransactionCount: 1, Totals: map[Category]int64{CategoryServiceRevenue: 10, CategoryDiscounts: 50}}
	_, err = BuildJournal(summary, testPolicy(), day, time.UTC)
	assert.ErrorIs(t, err, ErrNegativeNet)
}

func TestDayWindow(t *testing.T) {
	dubai := time.FixedZone("GST", 4*3600)
	start, end := DayWindow(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), dubai)
	assert.Equal(t, time.Date(2024, 6, 9, 20, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 6, 10, 20, 0, 0, 0, time.UTC), end)
}

func TestPostingErrorCarriesSummary(t *testing.T) {
	summary := &Summary{TransactionCount: 2}
	err := error(&Error{Err: ErrNoPolicy, Summary: summary})
	assert.ErrorIs(t, err, ErrNoPolicy)
	assert.Same(t, summary, SummaryOf(err))
	assert.Nil(t, SummaryOf(ErrNoPolicy))
}
