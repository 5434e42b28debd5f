package exchange

// ProposedFill is one step of a matching pass: take Qty units from Counter
// at Price. Nothing is mutated until the settlement pass applies it.
type ProposedFill struct {
	Counter *Order
	Qty     int64
	Price   int64
}

// proposeFills walks the eligible counter-orders in price-time priority and
// offers each one's full remaining quantity as a fill candidate. The trade
// price is always the resting order's price (maker price); market orders
// never rest, so every counter-order carries one. The list is deliberately
// not capped at the incoming remaining: settlement may skip candidates whose
// owner can no longer cover their side, and then falls through to the next
// ones.
func proposeFills(incoming *Order, book *Book) []ProposedFill {
	if incoming.Remaining() <= 0 {
		return nil
	}

	bounded := incoming.Type == Limit
	counters := book.ActiveCounterOrders(incoming.Direction, incoming.Price, bounded)

	fills := make([]ProposedFill, 0, len(counters))
	for _, c := range counters {
		fills = append(fills, ProposedFill{Counter: c, Qty: c.Remaining(), Price: c.Price})
	}
	return fills
}
