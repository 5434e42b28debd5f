package exchange

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// RUBTicker is the universal settlement currency. Every trade moves RUB on
// one leg and the traded asset on the other. The RUB instrument is seeded at
// startup and cannot be deleted.
const RUBTicker = "RUB"

// Direction is the side of an order.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the counter side.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// OrderType distinguishes resting limit orders from immediate-or-cancel
// market orders.
type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

// OrderStatus is the lifecycle state of an order.
//
// Transitions: NEW → PARTIALLY_EXECUTED → EXECUTED, NEW → EXECUTED,
// NEW → CANCELLED, PARTIALLY_EXECUTED → CANCELLED. EXECUTED and CANCELLED
// are terminal; the settlement coordinator and Cancel are the only two
// places that move an order between states.
type OrderStatus string

const (
	StatusNew               OrderStatus = "NEW"
	StatusPartiallyExecuted OrderStatus = "PARTIALLY_EXECUTED"
	StatusExecuted          OrderStatus = "EXECUTED"
	StatusCancelled         OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transition is permitted.
func (s OrderStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

// Role controls access to admin operations (instrument and balance
// administration). Authorization itself lives in the API layer; the engine
// only carries the flag.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

var tickerRE = regexp.MustCompile(`^[A-Z]{2,10}$`)

// ValidTicker reports whether s is a well-formed instrument ticker
// (2-10 uppercase letters).
func ValidTicker(s string) bool {
	return tickerRE.MatchString(s)
}

// Instrument is a tradeable asset identified by its ticker.
type Instrument struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// Account is a participant identity. The API key authenticates requests in
// the host service.
type Account struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Role   Role      `json:"role"`
	APIKey string    `json:"api_key"`
}

// Order is a limit or market order. Price is zero for market orders.
// Seq is the monotonic submission sequence used to break price ties.
type Order struct {
	ID        uuid.UUID   `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	Type      OrderType   `json:"type"`
	Direction Direction   `json:"direction"`
	Ticker    string      `json:"ticker"`
	Qty       int64       `json:"qty"`
	Price     int64       `json:"price,omitempty"`
	Filled    int64       `json:"filled"`
	Status    OrderStatus `json:"status"`
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// Active reports whether the order can still match.
func (o *Order) Active() bool {
	return !o.Status.Terminal()
}

// Trade is an immutable record of one fill. Qty units of Ticker changed
// hands at Price RUB each.
type Trade struct {
	ID        uuid.UUID `json:"id"`
	Ticker    string    `json:"ticker"`
	Qty       int64     `json:"qty"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
