package memory

import (
	"context"
	"fmt"
	"sync"

	"gagyebu/internal/core"
	ports "gagyebu/internal/sheets"
)

// Ledger keeps mirrored rows in memory, one slice per year.
type Ledger struct {
	mu    sync.Mutex
	years map[int][]core.Transaction
	err   error
}

var _ ports.Ledger = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{years: make(map[int][]core.Transaction)}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (l *Ledger) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// AppendTransaction stores the row and returns a synthetic row reference.
func (l *Ledger) AppendTransaction(_ context.Context, tx core.Transaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	year := tx.Date.Year()
	l.years[year] = append(l.years[year], tx)
	return fmt.Sprintf("mem:%d:%d", year, len(l.years[year])), nil
}

func (l *Ledger) HasTransaction(_ context.Context, tx core.Transaction) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	for _, row := range l.years[tx.Date.Year()] {
		if row.ID == tx.ID {
			return true, nil
		}
	}
	return false, nil
}

// Rows returns a copy of the rows mirrored for year.
func (l *Ledger) Rows(year int) []core.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Transaction(nil), l.years[year]...)
}
