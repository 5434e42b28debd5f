package exchange_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/avoskov/rubex/pkg/exchange"
)

func limitOrder(dir exchange.Direction, qty, price int64) *exchange.Order {
	return &exchange.Order{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Type:      exchange.Limit,
		Direction: dir,
		Ticker:    "TEST",
		Qty:       qty,
		Price:     price,
		Status:    exchange.StatusNew,
	}
}

func TestBookInsertRemove(t *testing.T) {
	b := exchange.NewBook("TEST")
	o := limitOrder(exchange.Buy, 5, 100)

	b.Insert(o)
	if !b.Contains(o.ID) {
		t.Fatal("inserted order not in book")
	}
	if !b.Remove(o.ID) {
		t.Fatal("remove returned false for resting order")
	}
	if b.Contains(o.ID) {
		t.Fatal("removed order still in book")
	}
	if b.Remove(o.ID) {
		t.Fatal("second remove returned true")
	}
}

func TestActiveCounterOrdersPriority(t *testing.T) {
	b := exchange.NewBook("TEST")
	a60 := limitOrder(exchange.Sell, 5, 60)
	a55 := limitOrder(exchange.Sell, 5, 55)
	a60late := limitOrder(exchange.Sell, 5, 60)
	b.Insert(a60)
	b.Insert(a55)
	b.Insert(a60late)

	// Unbounded buy sees the whole ask side, cheapest level first, FIFO
	// within a level.
	got := b.ActiveCounterOrders(exchange.Buy, 0, false)
	if len(got) != 3 {
		t.Fatalf("got %d counters, want 3", len(got))
	}
	if got[0].ID != a55.ID || got[1].ID != a60.ID || got[2].ID != a60late.ID {
		t.Errorf("order: %d %d %d, want 55 then 60 (FIFO)", got[0].Price, got[1].Price, got[2].Price)
	}

	// Bounded at 55: the 60 level does not cross.
	got = b.ActiveCounterOrders(exchange.Buy, 55, true)
	if len(got) != 1 || got[0].ID != a55.ID {
		t.Errorf("bounded counters = %d, want only the 55 ask", len(got))
	}

	// Terminal and fully-filled orders are filtered out.
	a55.Status = exchange.StatusCancelled
	got = b.ActiveCounterOrders(exchange.Buy, 0, false)
	if len(got) != 2 {
		t.Errorf("got %d counters after cancel, want 2", len(got))
	}
}

func TestActiveCounterOrdersSellSide(t *testing.T) {
	b := exchange.NewBook("TEST")
	b40 := limitOrder(exchange.Buy, 5, 40)
	b50 := limitOrder(exchange.Buy, 5, 50)
	b.Insert(b40)
	b.Insert(b50)

	// Incoming sell matches the highest bid first.
	got := b.ActiveCounterOrders(exchange.Sell, 0, false)
	if len(got) != 2 || got[0].ID != b50.ID {
		t.Fatalf("want highest bid first, got %+v", got)
	}

	// Bounded at 45: only the 50 bid crosses.
	got = b.ActiveCounterOrders(exchange.Sell, 45, true)
	if len(got) != 1 || got[0].ID != b50.ID {
		t.Errorf("bounded counters = %d, want only the 50 bid", len(got))
	}
}

func TestLevels(t *testing.T) {
	b := exchange.NewBook("TEST")
	b.Insert(limitOrder(exchange.Buy, 5, 40))
	b.Insert(limitOrder(exchange.Buy, 3, 40))
	b.Insert(limitOrder(exchange.Buy, 7, 50))
	partial := limitOrder(exchange.Sell, 10, 60)
	partial.Filled = 4
	partial.Status = exchange.StatusPartiallyExecuted
	b.Insert(partial)

	bids := b.BidLevels(10)
	if len(bids) != 2 {
		t.Fatalf("got %d bid levels, want 2", len(bids))
	}
	if bids[0].Price != 50 || bids[0].Qty != 7 {
		t.Errorf("best bid = %+v, want 7@50", bids[0])
	}
	if bids[1].Price != 40 || bids[1].Qty != 8 {
		t.Errorf("second bid = %+v, want 8@40 (aggregated)", bids[1])
	}

	// Partially filled orders contribute their remaining quantity.
	asks := b.AskLevels(10)
	if len(asks) != 1 || asks[0].Qty != 6 {
		t.Errorf("asks = %+v, want one level qty 6", asks)
	}

	// Depth limits the number of levels.
	if got := b.BidLevels(1); len(got) != 1 || got[0].Price != 50 {
		t.Errorf("depth-1 bids = %+v, want just the 50 level", got)
	}
}
