package exchange_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/avoskov/rubex/pkg/exchange"
	"github.com/avoskov/rubex/pkg/storage"
)

func TestLedgerCreditDebit(t *testing.T) {
	l := exchange.NewLedger(storage.NewMemStore())
	acc := uuid.New()

	if got := l.Get(acc, "RUB"); got != 0 {
		t.Errorf("fresh balance = %d, want 0", got)
	}
	if err := l.Credit(acc, "RUB", 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Credit(acc, "RUB", -1); !errors.Is(err, exchange.ErrInvalidAmount) {
		t.Errorf("negative credit err = %v, want ErrInvalidAmount", err)
	}
	if err := l.Debit(acc, "RUB", 150); !errors.Is(err, exchange.ErrInsufficientFunds) {
		t.Errorf("overdraft err = %v, want ErrInsufficientFunds", err)
	}
	if got := l.Get(acc, "RUB"); got != 100 {
		t.Errorf("balance after failed debit = %d, want 100", got)
	}
	if err := l.Debit(acc, "RUB", 60); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if got := l.Get(acc, "RUB"); got != 40 {
		t.Errorf("balance = %d, want 40", got)
	}
}

func TestLedgerCommitAtomicity(t *testing.T) {
	l := exchange.NewLedger(storage.NewMemStore())
	a, b := uuid.New(), uuid.New()
	if err := l.Credit(a, "RUB", 100); err != nil {
		t.Fatalf("credit: %v", err)
	}

	// One delta of the set would overdraw b; nothing must be applied.
	err := l.Commit([]exchange.BalanceDelta{
		{Account: a, Ticker: "RUB", Amount: -50},
		{Account: b, Ticker: "RUB", Amount: 50},
		{Account: b, Ticker: "TEST", Amount: -10},
	})
	if !errors.Is(err, exchange.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := l.Get(a, "RUB"); got != 100 {
		t.Errorf("a RUB = %d, want 100 (untouched)", got)
	}
	if got := l.Get(b, "RUB"); got != 0 {
		t.Errorf("b RUB = %d, want 0 (untouched)", got)
	}

	// The valid version of the same changeset applies in full.
	err = l.Commit([]exchange.BalanceDelta{
		{Account: a, Ticker: "RUB", Amount: -50},
		{Account: b, Ticker: "RUB", Amount: 50},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if l.Get(a, "RUB") != 50 || l.Get(b, "RUB") != 50 {
		t.Errorf("balances = %d/%d, want 50/50", l.Get(a, "RUB"), l.Get(b, "RUB"))
	}
}

func TestLedgerCommitNetsDeltas(t *testing.T) {
	l := exchange.NewLedger(storage.NewMemStore())
	a := uuid.New()

	// Opposing deltas on the same key net out before validation, so a
	// momentary negative inside a pass is fine.
	err := l.Commit([]exchange.BalanceDelta{
		{Account: a, Ticker: "RUB", Amount: -30},
		{Account: a, Ticker: "RUB", Amount: 30},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := l.Get(a, "RUB"); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestLedgerDrops(t *testing.T) {
	l := exchange.NewLedger(storage.NewMemStore())
	a, b := uuid.New(), uuid.New()
	for _, c := range []struct {
		acc    uuid.UUID
		ticker string
	}{{a, "RUB"}, {a, "TEST"}, {b, "RUB"}, {b, "TEST"}} {
		if err := l.Credit(c.acc, c.ticker, 10); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}

	if err := l.DropAccount(a); err != nil {
		t.Fatalf("drop account: %v", err)
	}
	if got := l.Balances(a); len(got) != 0 {
		t.Errorf("a balances = %v, want none", got)
	}
	if got := l.Get(b, "RUB"); got != 10 {
		t.Errorf("b RUB = %d, want 10", got)
	}

	if err := l.DropTicker("TEST"); err != nil {
		t.Fatalf("drop ticker: %v", err)
	}
	got := l.Balances(b)
	if _, ok := got["TEST"]; ok {
		t.Error("b TEST survived ticker drop")
	}
	if got["RUB"] != 10 {
		t.Errorf("b RUB = %d, want 10", got["RUB"])
	}
}
