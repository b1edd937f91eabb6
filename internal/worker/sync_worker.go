package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gagyebu/internal/amqp"
	"gagyebu/internal/core"
	"gagyebu/internal/sheets"
)

// Store is what the sync worker reads from and marks in persistence.
type Store interface {
	GetTransaction(ctx context.Context, id int64) (*core.Transaction, error)
	ListUnsynced(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkSynced(ctx context.Context, id int64) error
}

// SyncWorker mirrors generated transactions into the spreadsheet ledger.
type SyncWorker struct {
	storage   Store
	ledger    sheets.Ledger
	batchSize int
}

func NewSyncWorker(storage Store, ledger sheets.Ledger, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		storage:   storage,
		ledger:    ledger,
		batchSize: batchSize,
	}
}

// HandleGeneratedMessage processes a single generated-transaction message from AMQP
func (w *SyncWorker) HandleGeneratedMessage(ctx context.Context, msg *amqp.TransactionGeneratedMessage) error {
	slog.DebugContext(ctx, "Processing generated message",
		"transaction_id", msg.TransactionID,
		"message_id", msg.MessageID)

	tx, err := w.storage.GetTransaction(ctx, msg.TransactionID)
	if err != nil {
		if errors.Is(err, core.ErrTransactionNotFound) {
			// Nothing to mirror; requeueing would loop forever.
			slog.WarnContext(ctx, "Generated transaction no longer exists",
				"transaction_id", msg.TransactionID)
			return nil
		}
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	return w.syncTransaction(ctx, *tx)
}

// ProcessPendingTransactions mirrors transactions that haven't been synced yet.
// This is a backup mechanism in case AMQP messages are lost
func (w *SyncWorker) ProcessPendingTransactions(ctx context.Context) (int, error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger pending pass at worker startup.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", synced)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.storage.ListUnsynced(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unsynced transactions: %w", err)
	}

	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	synced := 0
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.syncTransaction(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction", "id", tx.ID, "error", err)
			continue
		}
		synced++
	}

	return synced, nil
}

func (w *SyncWorker) syncTransaction(ctx context.Context, tx core.Transaction) error {
	mirrored, err := w.ledger.HasTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("check ledger: %w", err)
	}

	if !mirrored {
		ref, err := w.ledger.AppendTransaction(ctx, tx)
		if err != nil {
			return fmt.Errorf("append to ledger: %w", err)
		}
		slog.InfoContext(ctx, "Synced transaction to ledger",
			"id", tx.ID,
			"sheets_ref", ref,
			"amount", tx.Amount)
	}

	if err := w.storage.MarkSynced(ctx, tx.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", tx.ID, "error", err)
		// Don't return error here - the row is in the ledger
	}

	return nil
}
