package exchange

import "github.com/google/uuid"

// Store is the narrow durability contract the engine writes through. The
// engine keeps authoritative state in memory and persists every mutation;
// Load brings the state back on startup. Implementations must make each
// call atomic but need no cross-call transactions: ordering and atomicity
// of a settlement pass come from the engine's locks.
type Store interface {
	SaveInstrument(ins Instrument) error
	DeleteInstrument(ticker string) error

	SaveAccount(acc *Account) error
	DeleteAccount(id uuid.UUID) error

	SaveBalance(account uuid.UUID, ticker string, amount int64) error
	DeleteBalance(account uuid.UUID, ticker string) error

	SaveOrder(o *Order) error
	DeleteOrder(id uuid.UUID) error

	SaveTrade(t *Trade) error
	// RecentTrades returns up to limit trades for ticker, newest first.
	RecentTrades(ticker string, limit int) ([]*Trade, error)

	// Load returns the full persisted state (instruments, accounts,
	// balances and orders; trades stay query-only).
	Load() (*State, error)
}

// State is everything the engine reloads on startup.
type State struct {
	Instruments []Instrument
	Accounts    []*Account
	Balances    []BalanceDelta
	Orders      []*Order
}
