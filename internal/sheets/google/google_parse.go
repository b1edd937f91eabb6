package google

import (
	"fmt"
	"strconv"
	"strings"

	"gagyebu/internal/core"
)

// transactionRow lays tx out in the column order of sheets.Header.
// Amounts are whole won, so they are written as integers.
func transactionRow(tx core.Transaction) []any {
	ruleID := ""
	if tx.GeneratedFromRuleID != nil {
		ruleID = strconv.FormatInt(*tx.GeneratedFromRuleID, 10)
	}
	merchant := ""
	if tx.Merchant != nil {
		merchant = *tx.Merchant
	}
	return []any{
		tx.Date.String(),
		string(tx.Type),
		tx.Amount,
		merchant,
		tx.Memo,
		strconv.FormatInt(tx.ID, 10),
		ruleID,
	}
}

// firstColumn returns the trimmed first cell of each non-empty row.
func firstColumn(values [][]any) []string {
	out := make([]string, 0, len(values))
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
