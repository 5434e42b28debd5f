package storage

import (
	"fmt"

	"github.com/google/uuid"
)

// Key schema for Pebble:
//
//   inst:<ticker>                    → Instrument
//   acct:<uuid>                      → Account
//   bal:<uuid>:<ticker>              → balanceRecord
//   ord:<uuid>                       → Order
//   trade:<ticker>:<timestamp>:<id>  → Trade
//
// Trade timestamps are zero-padded to 20 digits so a prefix scan yields
// chronological order.
const (
	prefixInstrument = "inst:"
	prefixAccount    = "acct:"
	prefixBalance    = "bal:"
	prefixOrder      = "ord:"
	prefixTrade      = "trade:"
)

func instrumentKey(ticker string) []byte {
	return []byte(prefixInstrument + ticker)
}

func accountKey(id uuid.UUID) []byte {
	return []byte(prefixAccount + id.String())
}

func balanceKey(account uuid.UUID, ticker string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, account, ticker))
}

func orderKey(id uuid.UUID) []byte {
	return []byte(prefixOrder + id.String())
}

func tradeKey(ticker string, unixNano int64, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, ticker, unixNano, id))
}

func tradePrefix(ticker string) []byte {
	return []byte(prefixTrade + ticker + ":")
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
