package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/avoskov/rubex/pkg/exchange"
)

type NewUserRequest struct {
	Name string `json:"name"`
}

type UserResponse struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Role   string    `json:"role"`
	APIKey string    `json:"api_key"`
}

type InstrumentRequest struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

type L2OrderBook struct {
	BidLevels []exchange.Level `json:"bid_levels"`
	AskLevels []exchange.Level `json:"ask_levels"`
}

// OrderBody is the payload of an order. A present price means LIMIT, an
// absent one MARKET.
type OrderBody struct {
	Direction exchange.Direction `json:"direction"`
	Ticker    string             `json:"ticker"`
	Qty       int64              `json:"qty"`
	Price     *int64             `json:"price,omitempty"`
}

type OrderResponse struct {
	ID        uuid.UUID            `json:"id"`
	Status    exchange.OrderStatus `json:"status"`
	UserID    uuid.UUID            `json:"user_id"`
	Timestamp time.Time            `json:"timestamp"`
	Body      OrderBody            `json:"body"`
	Filled    *int64               `json:"filled,omitempty"` // limit orders only
}

type CreateOrderResponse struct {
	Success bool      `json:"success"`
	OrderID uuid.UUID `json:"order_id"`
}

type OkResponse struct {
	Success bool `json:"success"`
}

type TransactionResponse struct {
	Ticker    string    `json:"ticker"`
	Amount    int64     `json:"amount"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

type BalanceChangeRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Ticker string    `json:"ticker"`
	Amount int64     `json:"amount"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ---- WebSocket messages ----

type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type TradeUpdate struct {
	Type      string    `json:"type"` // "trade"
	Ticker    string    `json:"ticker"`
	Qty       int64     `json:"qty"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

type OrderbookUpdate struct {
	Type      string           `json:"type"` // "orderbook"
	Ticker    string           `json:"ticker"`
	BidLevels []exchange.Level `json:"bid_levels"`
	AskLevels []exchange.Level `json:"ask_levels"`
	Timestamp time.Time        `json:"timestamp"`
}
