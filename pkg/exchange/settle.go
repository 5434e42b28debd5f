package exchange

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// settle turns a matching pass into durable state. It runs inside the
// instrument's critical section.
//
// The pass is staged first: each proposed fill is checked against the
// ledger view plus the deltas accumulated so far. A counterparty that can
// no longer cover its side is skipped (its resting liquidity went stale,
// e.g. the RUB was drained by a trade on another instrument); a shortfall
// on the incoming order's own side stops the remaining matching instead.
// Nothing is written until the surviving fills are known, so an unfillable
// market order is rejected with the ledger, book and trade log untouched.
func (e *Engine) settle(incoming *Order, fills []ProposedFill, book *Book) ([]*Trade, error) {
	pending := make(map[balanceKey]int64)
	avail := func(account uuid.UUID, ticker string) int64 {
		return e.ledger.Get(account, ticker) + pending[balanceKey{Account: account, Ticker: ticker}]
	}
	move := func(account uuid.UUID, ticker string, amount int64) {
		pending[balanceKey{Account: account, Ticker: ticker}] += amount
	}

	var applied []ProposedFill
	var filled int64
	remaining := incoming.Remaining()
	for _, f := range fills {
		if remaining == 0 {
			break
		}
		qty := f.Qty
		if qty > remaining {
			qty = remaining
		}
		cost := f.Price * qty

		var buyer, seller uuid.UUID
		if incoming.Direction == Buy {
			buyer, seller = incoming.UserID, f.Counter.UserID
		} else {
			buyer, seller = f.Counter.UserID, incoming.UserID
		}

		if avail(buyer, RUBTicker) < cost {
			if incoming.Direction == Buy {
				break // incoming side short: stop matching, keep what settled
			}
			continue // maker liquidity stale: skip this candidate
		}
		if avail(seller, incoming.Ticker) < qty {
			if incoming.Direction == Sell {
				break
			}
			continue
		}

		move(buyer, RUBTicker, -cost)
		move(buyer, incoming.Ticker, qty)
		move(seller, incoming.Ticker, -qty)
		move(seller, RUBTicker, cost)
		applied = append(applied, ProposedFill{Counter: f.Counter, Qty: qty, Price: f.Price})
		filled += qty
		remaining -= qty
	}

	if incoming.Type == Market && filled < incoming.Qty {
		return nil, fmt.Errorf("%w: %d of %d available", ErrUnfillableMarketOrder, filled, incoming.Qty)
	}

	deltas := make([]BalanceDelta, 0, len(pending))
	for k, amount := range pending {
		if amount != 0 {
			deltas = append(deltas, BalanceDelta{Account: k.Account, Ticker: k.Ticker, Amount: amount})
		}
	}
	if err := e.ledger.Commit(deltas); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	trades := make([]*Trade, 0, len(applied))
	for _, f := range applied {
		c := f.Counter
		c.Filled += f.Qty
		if c.Filled == c.Qty {
			c.Status = StatusExecuted
			book.Remove(c.ID)
		} else {
			c.Status = StatusPartiallyExecuted
		}
		if err := e.store.SaveOrder(c); err != nil {
			return trades, fmt.Errorf("persist counter order %s: %w", c.ID, err)
		}

		incoming.Filled += f.Qty
		t := &Trade{
			ID:        uuid.New(),
			Ticker:    incoming.Ticker,
			Qty:       f.Qty,
			Price:     f.Price,
			Timestamp: now,
		}
		if err := e.store.SaveTrade(t); err != nil {
			return trades, fmt.Errorf("persist trade: %w", err)
		}
		trades = append(trades, t)
	}

	switch {
	case incoming.Filled == incoming.Qty:
		incoming.Status = StatusExecuted
	case incoming.Filled > 0:
		incoming.Status = StatusPartiallyExecuted
	default:
		incoming.Status = StatusNew
	}
	if incoming.Type == Limit && incoming.Status != StatusExecuted {
		book.Insert(incoming)
	}
	if err := e.store.SaveOrder(incoming); err != nil {
		return trades, fmt.Errorf("persist order %s: %w", incoming.ID, err)
	}
	return trades, nil
}
