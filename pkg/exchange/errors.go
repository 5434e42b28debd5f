package exchange

import "errors"

// Error kinds surfaced to the host service. Handlers map these onto HTTP
// status codes with errors.Is.
var (
	ErrInstrumentNotFound    = errors.New("instrument not found")
	ErrInstrumentExists      = errors.New("instrument already exists")
	ErrInstrumentProtected   = errors.New("instrument cannot be deleted")
	ErrInvalidTicker         = errors.New("invalid ticker")
	ErrAccountNotFound       = errors.New("account not found")
	ErrInvalidName           = errors.New("invalid account name")
	ErrAccountExists         = errors.New("account already exists")
	ErrOrderNotFound         = errors.New("order not found")
	ErrInvalidOrderState     = errors.New("order is in a terminal state")
	ErrInvalidOrder          = errors.New("invalid order")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrUnfillableMarketOrder = errors.New("market order cannot be executed immediately")
)
