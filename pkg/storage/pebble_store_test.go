package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/avoskov/rubex/pkg/exchange"
)

func openTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPebbleLoadRoundtrip(t *testing.T) {
	s := openTestStore(t)

	ins := exchange.Instrument{Ticker: "TEST", Name: "Test asset"}
	acc := &exchange.Account{ID: uuid.New(), Name: "alice", Role: exchange.RoleUser, APIKey: "key-abc"}
	order := &exchange.Order{
		ID:        uuid.New(),
		UserID:    acc.ID,
		Type:      exchange.Limit,
		Direction: exchange.Sell,
		Ticker:    "TEST",
		Qty:       10,
		Price:     50,
		Filled:    3,
		Status:    exchange.StatusPartiallyExecuted,
		Seq:       7,
		Timestamp: time.Now().UTC(),
	}

	if err := s.SaveInstrument(ins); err != nil {
		t.Fatalf("save instrument: %v", err)
	}
	if err := s.SaveAccount(acc); err != nil {
		t.Fatalf("save account: %v", err)
	}
	if err := s.SaveBalance(acc.ID, "TEST", 42); err != nil {
		t.Fatalf("save balance: %v", err)
	}
	if err := s.SaveOrder(order); err != nil {
		t.Fatalf("save order: %v", err)
	}

	state, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(state.Instruments) != 1 || state.Instruments[0] != ins {
		t.Errorf("instruments = %+v, want [%+v]", state.Instruments, ins)
	}
	if len(state.Accounts) != 1 || *state.Accounts[0] != *acc {
		t.Errorf("accounts = %+v, want [%+v]", state.Accounts, acc)
	}
	if len(state.Balances) != 1 || state.Balances[0].Amount != 42 || state.Balances[0].Ticker != "TEST" {
		t.Errorf("balances = %+v, want one TEST/42", state.Balances)
	}
	if len(state.Orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(state.Orders))
	}
	got := state.Orders[0]
	if got.ID != order.ID || got.Filled != 3 || got.Status != exchange.StatusPartiallyExecuted || got.Seq != 7 {
		t.Errorf("order = %+v, want %+v", got, order)
	}
}

func TestPebbleDeletes(t *testing.T) {
	s := openTestStore(t)
	acc := &exchange.Account{ID: uuid.New(), Name: "bob", Role: exchange.RoleUser, APIKey: "key-b"}
	order := &exchange.Order{ID: uuid.New(), UserID: acc.ID, Ticker: "TEST", Type: exchange.Limit, Direction: exchange.Buy, Qty: 1, Price: 1, Status: exchange.StatusNew, Timestamp: time.Now().UTC()}

	if err := s.SaveInstrument(exchange.Instrument{Ticker: "TEST", Name: "t"}); err != nil {
		t.Fatalf("save instrument: %v", err)
	}
	if err := s.SaveAccount(acc); err != nil {
		t.Fatalf("save account: %v", err)
	}
	if err := s.SaveBalance(acc.ID, "TEST", 5); err != nil {
		t.Fatalf("save balance: %v", err)
	}
	if err := s.SaveOrder(order); err != nil {
		t.Fatalf("save order: %v", err)
	}

	if err := s.DeleteInstrument("TEST"); err != nil {
		t.Fatalf("delete instrument: %v", err)
	}
	if err := s.DeleteAccount(acc.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if err := s.DeleteBalance(acc.ID, "TEST"); err != nil {
		t.Fatalf("delete balance: %v", err)
	}
	if err := s.DeleteOrder(order.ID); err != nil {
		t.Fatalf("delete order: %v", err)
	}

	state, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(state.Instruments)+len(state.Accounts)+len(state.Balances)+len(state.Orders) != 0 {
		t.Errorf("state not empty after deletes: %+v", state)
	}
}

func TestPebbleRecentTrades(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)

	// Distinct timestamps so key order is unambiguous.
	for i := 0; i < 5; i++ {
		tr := &exchange.Trade{
			ID:        uuid.New(),
			Ticker:    "TEST",
			Qty:       int64(i + 1),
			Price:     50,
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.SaveTrade(tr); err != nil {
			t.Fatalf("save trade: %v", err)
		}
	}
	// Another ticker's trades must not leak into the scan.
	other := &exchange.Trade{ID: uuid.New(), Ticker: "TESTX", Qty: 99, Price: 1, Timestamp: base}
	if err := s.SaveTrade(other); err != nil {
		t.Fatalf("save trade: %v", err)
	}

	trades, err := s.RecentTrades("TEST", 3)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(trades))
	}
	// Newest first.
	if trades[0].Qty != 5 || trades[1].Qty != 4 || trades[2].Qty != 3 {
		t.Errorf("qtys = %d,%d,%d, want 5,4,3", trades[0].Qty, trades[1].Qty, trades[2].Qty)
	}
	for _, tr := range trades {
		if tr.Ticker != "TEST" {
			t.Errorf("foreign ticker %s in scan", tr.Ticker)
		}
	}

	all, err := s.RecentTrades("TEST", 0)
	if err != nil {
		t.Fatalf("recent trades unlimited: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("got %d trades, want 5", len(all))
	}
}
