package storage

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/avoskov/rubex/pkg/exchange"
)

type memBalanceKey struct {
	account uuid.UUID
	ticker  string
}

// MemStore is an in-memory exchange.Store for tests and throwaway
// deployments. State does not survive a restart.
type MemStore struct {
	mu          sync.Mutex
	instruments map[string]exchange.Instrument
	accounts    map[uuid.UUID]exchange.Account
	balances    map[memBalanceKey]int64
	orders      map[uuid.UUID]exchange.Order
	trades      map[string][]*exchange.Trade // ticker -> append order
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		instruments: make(map[string]exchange.Instrument),
		accounts:    make(map[uuid.UUID]exchange.Account),
		balances:    make(map[memBalanceKey]int64),
		orders:      make(map[uuid.UUID]exchange.Order),
		trades:      make(map[string][]*exchange.Trade),
	}
}

func (s *MemStore) SaveInstrument(ins exchange.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments[ins.Ticker] = ins
	return nil
}

func (s *MemStore) DeleteInstrument(ticker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instruments, ticker)
	return nil
}

func (s *MemStore) SaveAccount(acc *exchange.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.ID] = *acc
	return nil
}

func (s *MemStore) DeleteAccount(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}

func (s *MemStore) SaveBalance(account uuid.UUID, ticker string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[memBalanceKey{account, ticker}] = amount
	return nil
}

func (s *MemStore) DeleteBalance(account uuid.UUID, ticker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.balances, memBalanceKey{account, ticker})
	return nil
}

func (s *MemStore) SaveOrder(o *exchange.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	return nil
}

func (s *MemStore) DeleteOrder(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
	return nil
}

func (s *MemStore) SaveTrade(t *exchange.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.trades[t.Ticker] = append(s.trades[t.Ticker], &cp)
	return nil
}

func (s *MemStore) RecentTrades(ticker string, limit int) ([]*exchange.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.trades[ticker]
	var out []*exchange.Trade
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) Load() (*exchange.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := &exchange.State{}
	for _, ins := range s.instruments {
		state.Instruments = append(state.Instruments, ins)
	}
	for _, acc := range s.accounts {
		cp := acc
		state.Accounts = append(state.Accounts, &cp)
	}
	for k, amount := range s.balances {
		state.Balances = append(state.Balances, exchange.BalanceDelta{
			Account: k.account,
			Ticker:  k.ticker,
			Amount:  amount,
		})
	}
	for _, o := range s.orders {
		cp := o
		state.Orders = append(state.Orders, &cp)
	}
	sort.Slice(state.Orders, func(i, j int) bool { return state.Orders[i].Seq < state.Orders[j].Seq })
	return state, nil
}

var _ exchange.Store = (*MemStore)(nil)
