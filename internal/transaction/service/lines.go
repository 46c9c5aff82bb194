package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/smallbiznis/hera/internal/schema"
	"github.com/smallbiznis/hera/internal/smartcode"
	"github.com/smallbiznis/hera/internal/transaction/domain"
	"gorm.io/datatypes"
)

// buildLines validates line inputs and orders them by line number. Omitting
// every line number numbers the lines in request order.
func buildLines(inputs []domain.LineInput) ([]schema.TransactionLine, error) {
	lines := make([]schema.TransactionLine, len(inputs))
	if len(inputs) == 0 {
		return lines, nil
	}

	numbered := 0
	for _, in := range inputs {
		if in.LineNumber != 0 {
			numbered++
		}
	}
	autoNumber := numbered == 0
	if !autoNumber && numbered != len(inputs) {
		return nil, fmt.Errorf("%w: every line needs a line_number", domain.ErrInvalidLineSequence)
	}

	seen := make(map[int]bool, len(inputs))
	for i, in := range inputs {
		number := in.LineNumber
		if autoNumber {
			number = i + 1
		}
		if number < 1 || number > len(inputs) || seen[number] {
			return nil, fmt.Errorf("%w: line numbers must run 1..%d without gaps", domain.ErrInvalidLineSequence, len(inputs))
		}
		seen[number] = true

		line, err := buildLine(i, in)
		if err != nil {
			return nil, err
		}
		line.LineNumber = number
		lines[number-1] = line
	}
	return lines, nil
}

func buildLine(idx int, in domain.LineInput) (schema.TransactionLine, error) {
	code, err := smartcode.Check(fmt.Sprintf("lines[%d].smart_code", idx), in.SmartCode)
	if err != nil {
		return schema.TransactionLine{}, err
	}
	lineType := strings.ToLower(strings.TrimSpace(in.LineType))
	if lineType == "" {
		return schema.TransactionLine{}, fmt.Errorf("%w: lines[%d] has no line_type", domain.ErrInvalidLine, idx)
	}
	quantity := 1.0
	if in.Quantity != nil {
		quantity = *in.Quantity
	}
	if in.DebitAmount != nil && *in.DebitAmount < 0 || in.CreditAmount != nil && *in.CreditAmount < 0 {
		return schema.TransactionLine{}, fmt.Errorf("%w: lines[%d] debit and credit must not be negative", domain.ErrInvalidLine, idx)
	}

	amount := in.LineAmount
	if amount == 0 && in.UnitAmount != 0 {
		amount = int64(math.Round(quantity * float64(in.UnitAmount)))
	}

	return schema.TransactionLine{
		LineType:     lineType,
		LineEntityID: in.LineEntityID,
		Quantity:     quantity,
		UnitAmount:   in.UnitAmount,
		LineAmount:   amount,
		DebitAmount:  in.DebitAmount,
		CreditAmount: in.CreditAmount,
		SmartCode:    code,
		Metadata:     datatypes.JSONMap(in.Metadata),
	}, nil
}

// checkBalance applies only when some line carries a debit or credit leg.
func checkBalance(lines []schema.TransactionLine) (journal bool, debits int64, err error) {
	var credits int64
	for _, line := range lines {
		if line.DebitAmount != nil {
			journal = true
			debits += *line.DebitAmount
		}
		if line.CreditAmount != nil {
			journal = true
			credits += *line.CreditAmount
		}
	}
	if journal && debits != credits {
		return journal, debits, fmt.Errorf("%w: debits %d, credits %d", domain.ErrUnbalancedJournal, debits, credits)
	}
	return journal, debits, nil
}

func sumLineAmounts(lines []schema.TransactionLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.LineAmount
	}
	return total
}

// lineUpdateOnly reports whether a line input carries nothing but a line
// number and metadata.
func lineUpdateOnly(in domain.LineInput) bool {
	return in.LineType == "" &&
		in.LineEntityID == nil &&
		in.Quantity == nil &&
		in.UnitAmount == 0 &&
		in.LineAmount == 0 &&
		in.DebitAmount == nil &&
		in.CreditAmount == nil &&
		in.SmartCode == ""
}
