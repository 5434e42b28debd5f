package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/avoskov/rubex/pkg/exchange"
)

// balanceRecord is the stored value of one (account, ticker) balance.
type balanceRecord struct {
	Account uuid.UUID `json:"account"`
	Ticker  string    `json:"ticker"`
	Amount  int64     `json:"amount"`
}

// PebbleStore is the durable exchange.Store backed by Pebble. Every write
// of registry and order state is synced; trade appends use NoSync since
// the trade is also implied by the orders' filled counters.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens (or creates) the database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) set(key []byte, v any, opt *pebble.WriteOptions) error {
	data, err := encodeJSON(v)
	if err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	return s.db.Set(key, data, opt)
}

func (s *PebbleStore) SaveInstrument(ins exchange.Instrument) error {
	return s.set(instrumentKey(ins.Ticker), ins, pebble.Sync)
}

func (s *PebbleStore) DeleteInstrument(ticker string) error {
	return s.db.Delete(instrumentKey(ticker), pebble.Sync)
}

func (s *PebbleStore) SaveAccount(acc *exchange.Account) error {
	return s.set(accountKey(acc.ID), acc, pebble.Sync)
}

func (s *PebbleStore) DeleteAccount(id uuid.UUID) error {
	return s.db.Delete(accountKey(id), pebble.Sync)
}

func (s *PebbleStore) SaveBalance(account uuid.UUID, ticker string, amount int64) error {
	rec := balanceRecord{Account: account, Ticker: ticker, Amount: amount}
	return s.set(balanceKey(account, ticker), rec, pebble.Sync)
}

func (s *PebbleStore) DeleteBalance(account uuid.UUID, ticker string) error {
	return s.db.Delete(balanceKey(account, ticker), pebble.Sync)
}

func (s *PebbleStore) SaveOrder(o *exchange.Order) error {
	return s.set(orderKey(o.ID), o, pebble.Sync)
}

func (s *PebbleStore) DeleteOrder(id uuid.UUID) error {
	return s.db.Delete(orderKey(id), pebble.Sync)
}

func (s *PebbleStore) SaveTrade(t *exchange.Trade) error {
	return s.set(tradeKey(t.Ticker, t.Timestamp.UnixNano(), t.ID), t, pebble.NoSync)
}

// RecentTrades scans the ticker's trade range backwards: keys embed a
// zero-padded timestamp, so reverse key order is newest first.
func (s *PebbleStore) RecentTrades(ticker string, limit int) ([]*exchange.Trade, error) {
	prefix := tradePrefix(ticker)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []*exchange.Trade
	for iter.Last(); iter.Valid() && (limit <= 0 || len(trades) < limit); iter.Prev() {
		var t exchange.Trade
		if err := decodeJSON(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("decode trade %q: %w", iter.Key(), err)
		}
		trades = append(trades, &t)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return trades, nil
}

// Load reads back the whole registry, balance and order state.
func (s *PebbleStore) Load() (*exchange.State, error) {
	state := &exchange.State{}

	if err := s.scan(prefixInstrument, func(val []byte) error {
		var ins exchange.Instrument
		if err := decodeJSON(val, &ins); err != nil {
			return err
		}
		state.Instruments = append(state.Instruments, ins)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load instruments: %w", err)
	}

	if err := s.scan(prefixAccount, func(val []byte) error {
		var acc exchange.Account
		if err := decodeJSON(val, &acc); err != nil {
			return err
		}
		state.Accounts = append(state.Accounts, &acc)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	if err := s.scan(prefixBalance, func(val []byte) error {
		var rec balanceRecord
		if err := decodeJSON(val, &rec); err != nil {
			return err
		}
		state.Balances = append(state.Balances, exchange.BalanceDelta{
			Account: rec.Account,
			Ticker:  rec.Ticker,
			Amount:  rec.Amount,
		})
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}

	if err := s.scan(prefixOrder, func(val []byte) error {
		var o exchange.Order
		if err := decodeJSON(val, &o); err != nil {
			return err
		}
		state.Orders = append(state.Orders, &o)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	return state, nil
}

func (s *PebbleStore) scan(prefix string, fn func(val []byte) error) error {
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: keyUpperBound(p),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return fmt.Errorf("key %q: %w", iter.Key(), err)
		}
	}
	return iter.Error()
}

var _ exchange.Store = (*PebbleStore)(nil)
