package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/amqp"
	"gagyebu/internal/core"
	sheetsmem "gagyebu/internal/sheets/memory"
	"gagyebu/internal/storage/memory"
)

func seedTransaction(t *testing.T, store *memory.Store, day int) core.Transaction {
	t.Helper()
	tx, err := store.InsertTransaction(context.Background(), core.NewTransaction{
		OwnerUserID: 1,
		Type:        core.Expense,
		Date:        core.NewDate(2025, 6, day),
		Amount:      1000,
		Memo:        "(자동 생성)",
	})
	require.NoError(t, err)
	return tx
}

func TestHandleGeneratedMessage(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := sheetsmem.New()
	w := NewSyncWorker(store, ledger, 10)
	tx := seedTransaction(t, store, 1)

	msg := amqp.NewTransactionGeneratedMessage(tx)
	require.NoError(t, w.HandleGeneratedMessage(ctx, msg))
	// Redelivery must not duplicate the row.
	require.NoError(t, w.HandleGeneratedMessage(ctx, msg))

	assert.Len(t, ledger.Rows(2025), 1)

	pending, err := store.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleGeneratedMessage_MissingTransaction(t *testing.T) {
	w := NewSyncWorker(memory.New(), sheetsmem.New(), 10)
	err := w.HandleGeneratedMessage(context.Background(), &amqp.TransactionGeneratedMessage{TransactionID: 99})
	assert.NoError(t, err)
}

func TestHandleGeneratedMessage_LedgerFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := sheetsmem.New()
	ledger.FailWith(errors.New("quota exceeded"))
	w := NewSyncWorker(store, ledger, 10)
	tx := seedTransaction(t, store, 1)

	err := w.HandleGeneratedMessage(ctx, amqp.NewTransactionGeneratedMessage(tx))
	require.Error(t, err)

	pending, err := store.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "failed sync stays pending")
}

func TestProcessPendingTransactions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ledger := sheetsmem.New()
	w := NewSyncWorker(store, ledger, 2)
	for day := 1; day <= 3; day++ {
		seedTransaction(t, store, day)
	}

	synced, err := w.ProcessPendingTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, synced, "one batch at a time")

	synced, err = w.ProcessPendingTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	assert.Len(t, ledger.Rows(2025), 3)
}

func TestStartupSyncCheck(t *testing.T) {
	store := memory.New()
	ledger := sheetsmem.New()
	w := NewSyncWorker(store, ledger, 1)
	for day := 1; day <= 3; day++ {
		seedTransaction(t, store, day)
	}

	require.NoError(t, w.StartupSyncCheck(context.Background()))
	assert.Len(t, ledger.Rows(2025), 3)
}

func TestPoller_Lifecycle(t *testing.T) {
	store := memory.New()
	ledger := sheetsmem.New()
	seedTransaction(t, store, 1)
	p := NewPoller(NewSyncWorker(store, ledger, 10), PollerConfig{Interval: 10 * time.Millisecond})

	assert.False(t, p.IsRunning())
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	assert.Error(t, p.Start(ctx), "second start must fail")

	assert.Eventually(t, func() bool { return len(ledger.Rows(2025)) == 1 }, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
	assert.False(t, p.IsRunning())
	assert.NoError(t, p.Stop(stopCtx), "stopping a stopped poller is a no-op")
}

func TestPoller_ConcurrentStop(t *testing.T) {
	store := memory.New()
	p := NewPoller(NewSyncWorker(store, sheetsmem.New(), 10), PollerConfig{Interval: 10 * time.Millisecond})
	require.NoError(t, p.Start(context.Background()))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Stop(stopCtx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Start(context.Background()), "a stopped poller can start again")
	require.NoError(t, p.Stop(stopCtx))
}
