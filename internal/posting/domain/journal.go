package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

type JournalLine struct {
	Category  Category     `json:"category"`
	AccountID snowflake.ID `json:"account_id"`
	Direction Direction    `json:"direction"`
	Amount    int64        `json:"amount"`
}

type Journal struct {
	Code         string        `json:"transaction_code"`
	Date         time.Time     `json:"transaction_date"`
	Currency     string        `json:"currency"`
	Lines        []JournalLine `json:"lines"`
	DebitTotal   int64         `json:"debit_total"`
	CreditTotal  int64         `json:"credit_total"`
	BusinessDate string        `json:"business_date"`
}

// BuildJournal turns a summary into journal lines: clearing and discounts on
// the debit side, every other category on the credit side. Zero categories
// produce no line. The journal is dated 23:59:59 of the business day in loc.
func BuildJournal(summary *Summary, policy *Policy, day time.Time, loc *time.Location) (*Journal, error) {
	if summary.Empty() {
		return nil, ErrNoSalesFound
	}
	if policy == nil {
		return nil, ErrNoPolicy
	}
	if loc == nil {
		loc = time.UTC
	}
	net := summary.NetCollected()
	if net < 0 {
		return nil, fmt.Errorf("%w: discounts exceed sales by %d", ErrNegativeNet, -net)
	}
	if policy.ClearingAccount == 0 {
		return nil, fmt.Errorf("%w: %s is not set", ErrNoPolicy, ClearingField)
	}

	journal := &Journal{
		Code:         JournalCode(summary.BranchID, day),
		Date:         EndOfDay(day, loc),
		Currency:     summary.Currency,
		BusinessDate: day.Format(DayLayout),
	}
	if net > 0 {
		journal.Lines = append(journal.Lines, JournalLine{
			Category:  "clearing",
			AccountID: policy.ClearingAccount,
			Direction: DirectionDebit,
			Amount:    net,
		})
	}
	for _, c := range Categories {
		amount := summary.Totals[c]
		if amount == 0 {
			continue
		}
		account := policy.Accounts[c]
		if account == 0 {
			return nil, fmt.Errorf("%w: %s is not set", ErrNoPolicy, AccountField(c))
		}
		direction := DirectionCredit
		if c == CategoryDiscounts {
			direction = DirectionDebit
		}
		journal.Lines = append(journal.Lines, JournalLine{
			Category:  c,
			AccountID: account,
			Direction: direction,
			Amount:    amount,
		})
	}

	if len(journal.Lines) == 0 {
		return nil, ErrNoSalesFound
	}
	for _, line := range journal.Lines {
		if line.Direction == DirectionDebit {
			journal.DebitTotal += line.Amount
		} else {
			journal.CreditTotal += line.Amount
		}
	}
	if journal.DebitTotal != journal.CreditTotal {
		return nil, fmt.Errorf("journal not balanced: debits %d, credits %d", journal.DebitTotal, journal.CreditTotal)
	}
	return journal, nil
}

// EndOfDay returns 23:59:59 of the calendar day in loc, in UTC.
func EndOfDay(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, loc).UTC()
}

// DayWindow returns [start, end) of the calendar day in loc, in UTC.
func DayWindow(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}
