package exchange

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type balanceKey struct {
	Account uuid.UUID
	Ticker  string
}

// BalanceDelta is one signed balance movement. Settlement batches four of
// them per fill (buyer RUB out, buyer asset in, seller asset out, seller
// RUB in) and commits a whole pass at once.
type BalanceDelta struct {
	Account uuid.UUID
	Ticker  string
	Amount  int64
}

// Ledger holds per-(account, ticker) quantities. Balances are created
// lazily on first credit and never go negative: a debit that would cross
// zero fails instead.
//
// The ledger has its own lock because settlement passes on different
// instruments touch the same RUB balances concurrently. Each method is a
// single atomic step under that lock; Commit applies a whole changeset
// under one acquisition.
type Ledger struct {
	mu       sync.RWMutex
	balances map[balanceKey]int64
	store    Store
}

// NewLedger creates an empty ledger persisting through store.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		balances: make(map[balanceKey]int64),
		store:    store,
	}
}

// Credit adds amount to the (account, ticker) balance, creating it at zero
// if absent.
func (l *Ledger) Credit(account uuid.UUID, ticker string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: credit %d", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	k := balanceKey{Account: account, Ticker: ticker}
	l.balances[k] += amount
	return l.store.SaveBalance(account, ticker, l.balances[k])
}

// Debit removes amount from the (account, ticker) balance. Fails with
// ErrInsufficientFunds if the balance would go negative.
func (l *Ledger) Debit(account uuid.UUID, ticker string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: debit %d", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	k := balanceKey{Account: account, Ticker: ticker}
	if l.balances[k] < amount {
		return fmt.Errorf("%w: %s has %d %s, need %d", ErrInsufficientFunds, account, l.balances[k], ticker, amount)
	}
	l.balances[k] -= amount
	return l.store.SaveBalance(account, ticker, l.balances[k])
}

// Get returns the (account, ticker) balance, zero if absent.
func (l *Ledger) Get(account uuid.UUID, ticker string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey{Account: account, Ticker: ticker}]
}

// Balances returns all balances of one account keyed by ticker.
func (l *Ledger) Balances(account uuid.UUID) map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]int64)
	for k, v := range l.balances {
		if k.Account == account {
			out[k.Ticker] = v
		}
	}
	return out
}

// Commit applies a settlement changeset all-or-nothing: every resulting
// balance is validated non-negative before anything is written. A failure
// leaves the ledger untouched.
func (l *Ledger) Commit(deltas []BalanceDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	totals := make(map[balanceKey]int64, len(deltas))
	for _, d := range deltas {
		totals[balanceKey{Account: d.Account, Ticker: d.Ticker}] += d.Amount
	}
	for k, delta := range totals {
		if l.balances[k]+delta < 0 {
			return fmt.Errorf("%w: %s has %d %s, need %d", ErrInsufficientFunds, k.Account, l.balances[k], k.Ticker, -delta)
		}
	}
	for k, delta := range totals {
		l.balances[k] += delta
		if err := l.store.SaveBalance(k.Account, k.Ticker, l.balances[k]); err != nil {
			return fmt.Errorf("persist balance %s/%s: %w", k.Account, k.Ticker, err)
		}
	}
	return nil
}

// DropAccount removes every balance of an account. Part of the explicit
// account deletion cascade.
func (l *Ledger) DropAccount(account uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k := range l.balances {
		if k.Account != account {
			continue
		}
		delete(l.balances, k)
		if err := l.store.DeleteBalance(k.Account, k.Ticker); err != nil {
			return err
		}
	}
	return nil
}

// DropTicker removes every balance denominated in ticker. Part of the
// explicit instrument deletion cascade.
func (l *Ledger) DropTicker(ticker string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k := range l.balances {
		if k.Ticker != ticker {
			continue
		}
		delete(l.balances, k)
		if err := l.store.DeleteBalance(k.Account, k.Ticker); err != nil {
			return err
		}
	}
	return nil
}

// restore seeds the ledger from persisted state without writing back.
func (l *Ledger) restore(deltas []BalanceDelta) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range deltas {
		l.balances[balanceKey{Account: d.Account, Ticker: d.Ticker}] = d.Amount
	}
}
