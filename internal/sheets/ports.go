package sheets

import (
	"context"

	"gagyebu/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter mirrors a stored transaction into a spreadsheet.
	LedgerWriter interface {
		AppendTransaction(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}

	// LedgerIndex tells whether a transaction was already mirrored, so a
	// redelivered message does not append a second row.
	LedgerIndex interface {
		HasTransaction(ctx context.Context, tx core.Transaction) (bool, error)
	}

	Ledger interface {
		LedgerWriter
		LedgerIndex
	}
)

// Header is the first row of every ledger sheet.
var Header = []string{"Date", "Type", "Amount", "Merchant", "Memo", "TransactionID", "RuleID"}
