package memory

import (
	"context"
	"errors"
	"testing"

	"gagyebu/internal/core"
)

func TestLedgerAppendAndHas(t *testing.T) {
	l := New()
	ctx := context.Background()
	tx := core.Transaction{ID: 5, NewTransaction: core.NewTransaction{Date: core.NewDate(2025, 4, 1)}}

	found, err := l.HasTransaction(ctx, tx)
	if err != nil || found {
		t.Fatalf("unexpected has before append: %v %v", found, err)
	}

	ref, err := l.AppendTransaction(ctx, tx)
	if err != nil || ref != "mem:2025:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	found, err = l.HasTransaction(ctx, tx)
	if err != nil || !found {
		t.Fatalf("unexpected has after append: %v %v", found, err)
	}
	if rows := l.Rows(2025); len(rows) != 1 {
		t.Fatalf("rows = %v", rows)
	}
	if rows := l.Rows(2024); len(rows) != 0 {
		t.Fatalf("rows for other year = %v", rows)
	}
}

func TestLedgerFailWith(t *testing.T) {
	l := New()
	boom := errors.New("quota exceeded")
	l.FailWith(boom)

	if _, err := l.AppendTransaction(context.Background(), core.Transaction{ID: 1}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	l.FailWith(nil)
	if _, err := l.AppendTransaction(context.Background(), core.Transaction{ID: 1}); err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
}
