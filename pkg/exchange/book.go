package exchange

import (
	"container/heap"

	"github.com/google/uuid"
)

// Level is one aggregated price level of the L2 snapshot.
type Level struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// Book holds the resting orders of one instrument: a FIFO queue per price
// level plus an id index for O(1) removal. Orders are appended in submission
// order, so a queue is already time-priority sorted.
//
// Book has no lock of its own. All access happens inside the engine's
// per-instrument critical section.
type Book struct {
	ticker string

	bids map[int64][]*Order // price -> FIFO queue
	asks map[int64][]*Order

	index map[uuid.UUID]int64 // order ID -> price level
}

// NewBook creates an empty book for ticker.
func NewBook(ticker string) *Book {
	return &Book{
		ticker: ticker,
		bids:   make(map[int64][]*Order),
		asks:   make(map[int64][]*Order),
		index:  make(map[uuid.UUID]int64),
	}
}

func (b *Book) side(d Direction) map[int64][]*Order {
	if d == Buy {
		return b.bids
	}
	return b.asks
}

// Insert rests an order. Market orders never rest; the caller only inserts
// limit orders that could not fully fill.
func (b *Book) Insert(o *Order) {
	q := b.side(o.Direction)
	q[o.Price] = append(q[o.Price], o)
	b.index[o.ID] = o.Price
}

// Remove takes an order out of the book. Returns false if the order is not
// resting.
func (b *Book) Remove(id uuid.UUID) bool {
	price, ok := b.index[id]
	if !ok {
		return false
	}
	for _, q := range []map[int64][]*Order{b.bids, b.asks} {
		arr, exists := q[price]
		if !exists {
			continue
		}
		for i, o := range arr {
			if o.ID == id {
				q[price] = append(arr[:i], arr[i+1:]...)
				if len(q[price]) == 0 {
					delete(q, price)
				}
				delete(b.index, id)
				return true
			}
		}
	}
	return false
}

// Contains reports whether the order is resting in the book.
func (b *Book) Contains(id uuid.UUID) bool {
	_, ok := b.index[id]
	return ok
}

// ActiveCounterOrders returns the resting orders eligible to match an
// incoming order on side taker: opposite-side orders with status NEW or
// PARTIALLY_EXECUTED, best price first, earliest submission breaking ties.
// With bounded set, only levels crossing bound are returned (asks priced
// ≤ bound for a buy, bids priced ≥ bound for a sell). Market orders pass
// bounded=false and see the whole counter side.
func (b *Book) ActiveCounterOrders(taker Direction, bound int64, bounded bool) []*Order {
	var out []*Order
	if taker == Buy {
		h := &minPriceHeap{}
		for p := range b.asks {
			if !bounded || p <= bound {
				*h = append(*h, p)
			}
		}
		heap.Init(h)
		for h.Len() > 0 {
			p := heap.Pop(h).(int64)
			out = appendActive(out, b.asks[p])
		}
	} else {
		h := &maxPriceHeap{}
		for p := range b.bids {
			if !bounded || p >= bound {
				*h = append(*h, p)
			}
		}
		heap.Init(h)
		for h.Len() > 0 {
			p := heap.Pop(h).(int64)
			out = appendActive(out, b.bids[p])
		}
	}
	return out
}

func appendActive(dst []*Order, queue []*Order) []*Order {
	for _, o := range queue {
		if o.Active() && o.Remaining() > 0 {
			dst = append(dst, o)
		}
	}
	return dst
}

// BidLevels aggregates resting bid quantity by price, best (highest) first,
// up to depth levels. depth <= 0 means all levels.
func (b *Book) BidLevels(depth int) []Level {
	h := &maxPriceHeap{}
	for p := range b.bids {
		*h = append(*h, p)
	}
	heap.Init(h)
	return b.popLevels(h, b.bids, depth)
}

// AskLevels aggregates resting ask quantity by price, best (lowest) first,
// up to depth levels.
func (b *Book) AskLevels(depth int) []Level {
	h := &minPriceHeap{}
	for p := range b.asks {
		*h = append(*h, p)
	}
	heap.Init(h)
	return b.popLevels(h, b.asks, depth)
}

func (b *Book) popLevels(h heap.Interface, q map[int64][]*Order, depth int) []Level {
	var levels []Level
	for h.Len() > 0 {
		if depth > 0 && len(levels) == depth {
			break
		}
		p := heap.Pop(h).(int64)
		var total int64
		for _, o := range q[p] {
			if o.Active() {
				total += o.Remaining()
			}
		}
		if total > 0 {
			levels = append(levels, Level{Price: p, Qty: total})
		}
	}
	return levels
}
