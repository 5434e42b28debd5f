package exchange

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine is the matching and settlement core. It owns the instrument and
// account registries, the per-instrument order books, the balance ledger
// and the order index, and persists every mutation through the Store.
//
// Locking model: one mutex per instrument serializes the whole
// match-and-settle pass of an incoming order (two orders on different
// instruments never wait on each other). The engine mutex guards the
// registries and order field reads for display; it is only ever taken
// while an instrument lock is already held, never the other way around.
type Engine struct {
	store  Store
	ledger *Ledger
	log    *zap.SugaredLogger

	mu          sync.RWMutex
	instruments map[string]Instrument
	accounts    map[uuid.UUID]*Account
	byKey       map[string]*Account
	byName      map[string]*Account
	orders      map[uuid.UUID]*Order
	books       map[string]*Book
	bookMu      map[string]*sync.Mutex

	seq atomic.Uint64

	// OnTrade and OnBook are invoked after a settlement pass has released
	// its locks, once per trade and once per touched instrument. The host
	// service uses them for WebSocket broadcasts.
	OnTrade func(t *Trade)
	OnBook  func(ticker string)
}

// New creates an engine backed by store, reloads persisted state and seeds
// the RUB instrument if absent.
func New(store Store, logger *zap.SugaredLogger) (*Engine, error) {
	e := &Engine{
		store:       store,
		ledger:      NewLedger(store),
		log:         logger,
		instruments: make(map[string]Instrument),
		accounts:    make(map[uuid.UUID]*Account),
		byKey:       make(map[string]*Account),
		byName:      make(map[string]*Account),
		orders:      make(map[uuid.UUID]*Order),
		books:       make(map[string]*Book),
		bookMu:      make(map[string]*sync.Mutex),
	}

	state, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	for _, ins := range state.Instruments {
		e.instruments[ins.Ticker] = ins
		e.books[ins.Ticker] = NewBook(ins.Ticker)
		e.bookMu[ins.Ticker] = &sync.Mutex{}
	}
	for _, acc := range state.Accounts {
		e.accounts[acc.ID] = acc
		e.byKey[acc.APIKey] = acc
		e.byName[acc.Name] = acc
	}
	e.ledger.restore(state.Balances)

	// Resting orders re-enter their books in submission order so FIFO
	// priority survives a restart.
	sort.Slice(state.Orders, func(i, j int) bool { return state.Orders[i].Seq < state.Orders[j].Seq })
	var maxSeq uint64
	for _, o := range state.Orders {
		e.orders[o.ID] = o
		if o.Seq > maxSeq {
			maxSeq = o.Seq
		}
		if o.Type == Limit && o.Active() {
			if b, ok := e.books[o.Ticker]; ok {
				b.Insert(o)
			}
		}
	}
	e.seq.Store(maxSeq)

	if _, ok := e.instruments[RUBTicker]; !ok {
		if err := e.addInstrumentLocked(Instrument{Ticker: RUBTicker, Name: "Российский рубль"}); err != nil {
			return nil, err
		}
	}

	e.log.Infow("engine_loaded",
		"instruments", len(e.instruments),
		"accounts", len(e.accounts),
		"orders", len(e.orders))
	return e, nil
}

// ---- accounts ----

// Register creates a USER account with a generated API key. Names are
// unique and at least 3 characters.
func (e *Engine) Register(name string) (*Account, error) {
	if len(name) < 3 {
		return nil, fmt.Errorf("%w: name too short", ErrInvalidName)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.byName[name]; ok {
		return nil, ErrAccountExists
	}
	acc := &Account{
		ID:     uuid.New(),
		Name:   name,
		Role:   RoleUser,
		APIKey: "key-" + uuid.NewString(),
	}
	if err := e.store.SaveAccount(acc); err != nil {
		return nil, fmt.Errorf("persist account: %w", err)
	}
	e.accounts[acc.ID] = acc
	e.byKey[acc.APIKey] = acc
	e.byName[acc.Name] = acc
	e.log.Infow("account_registered", "id", acc.ID, "name", acc.Name)
	return acc, nil
}

// SeedAdmin returns the existing admin account or creates one named
// "admin". apiKey overrides the generated key when non-empty.
func (e *Engine) SeedAdmin(apiKey string) (*Account, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, acc := range e.accounts {
		if acc.Role == RoleAdmin {
			return acc, false, nil
		}
	}
	if apiKey == "" {
		apiKey = "key-" + uuid.NewString()
	}
	acc := &Account{ID: uuid.New(), Name: "admin", Role: RoleAdmin, APIKey: apiKey}
	if err := e.store.SaveAccount(acc); err != nil {
		return nil, false, fmt.Errorf("persist admin: %w", err)
	}
	e.accounts[acc.ID] = acc
	e.byKey[acc.APIKey] = acc
	e.byName[acc.Name] = acc
	return acc, true, nil
}

// AccountByKey resolves an API key, for request authentication.
func (e *Engine) AccountByKey(key string) (*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acc, ok := e.byKey[key]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// Account returns an account by id.
func (e *Engine) Account(id uuid.UUID) (*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	acc, ok := e.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// DeleteAccount removes an account with its explicit cascade: open orders
// are cancelled, balances deleted. Settled trades stay.
func (e *Engine) DeleteAccount(id uuid.UUID) (*Account, error) {
	e.mu.RLock()
	acc, ok := e.accounts[id]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}

	for _, o := range e.Orders(id) {
		// Best effort: the order may have executed concurrently.
		_ = e.CancelOrder(o.ID, id)
	}
	if err := e.ledger.DropAccount(id); err != nil {
		return nil, err
	}

	e.mu.Lock()
	delete(e.accounts, id)
	delete(e.byKey, acc.APIKey)
	delete(e.byName, acc.Name)
	e.mu.Unlock()

	if err := e.store.DeleteAccount(id); err != nil {
		return nil, fmt.Errorf("delete account: %w", err)
	}
	e.log.Infow("account_deleted", "id", id, "name", acc.Name)
	return acc, nil
}

// ---- instruments ----

// AddInstrument registers a new tradeable instrument.
func (e *Engine) AddInstrument(ticker, name string) error {
	if !ValidTicker(ticker) {
		return fmt.Errorf("%w: %q", ErrInvalidTicker, ticker)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addInstrumentLocked(Instrument{Ticker: ticker, Name: name})
}

func (e *Engine) addInstrumentLocked(ins Instrument) error {
	if _, ok := e.instruments[ins.Ticker]; ok {
		return ErrInstrumentExists
	}
	if err := e.store.SaveInstrument(ins); err != nil {
		return fmt.Errorf("persist instrument: %w", err)
	}
	e.instruments[ins.Ticker] = ins
	e.books[ins.Ticker] = NewBook(ins.Ticker)
	e.bookMu[ins.Ticker] = &sync.Mutex{}
	e.log.Infow("instrument_added", "ticker", ins.Ticker, "name", ins.Name)
	return nil
}

// Instruments lists all instruments, sorted by ticker.
func (e *Engine) Instruments() []Instrument {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Instrument, 0, len(e.instruments))
	for _, ins := range e.instruments {
		out = append(out, ins)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// DeleteInstrument removes an instrument with its explicit cascade: open
// orders on it are cancelled and balances denominated in it deleted. RUB
// is protected.
func (e *Engine) DeleteInstrument(ticker string) error {
	if ticker == RUBTicker {
		return fmt.Errorf("%w: %s", ErrInstrumentProtected, ticker)
	}
	e.mu.RLock()
	lk, ok := e.bookMu[ticker]
	book := e.books[ticker]
	e.mu.RUnlock()
	if !ok {
		return ErrInstrumentNotFound
	}

	lk.Lock()
	e.mu.Lock()
	for _, o := range e.orders {
		if o.Ticker == ticker && o.Active() {
			o.Status = StatusCancelled
			book.Remove(o.ID)
			if err := e.store.SaveOrder(o); err != nil {
				e.mu.Unlock()
				lk.Unlock()
				return fmt.Errorf("persist order %s: %w", o.ID, err)
			}
		}
	}
	delete(e.instruments, ticker)
	delete(e.books, ticker)
	delete(e.bookMu, ticker)
	e.mu.Unlock()
	lk.Unlock()

	if err := e.ledger.DropTicker(ticker); err != nil {
		return err
	}
	if err := e.store.DeleteInstrument(ticker); err != nil {
		return fmt.Errorf("delete instrument: %w", err)
	}
	e.log.Infow("instrument_deleted", "ticker", ticker)
	return nil
}

// ---- balances ----

// Deposit credits an (account, ticker) balance. Admin operation.
func (e *Engine) Deposit(account uuid.UUID, ticker string, amount int64) error {
	if err := e.checkAccountAndInstrument(account, ticker); err != nil {
		return err
	}
	if err := e.ledger.Credit(account, ticker, amount); err != nil {
		return err
	}
	e.log.Infow("deposit", "account", account, "ticker", ticker, "amount", amount)
	return nil
}

// Withdraw debits an (account, ticker) balance. Admin operation.
func (e *Engine) Withdraw(account uuid.UUID, ticker string, amount int64) error {
	if err := e.checkAccountAndInstrument(account, ticker); err != nil {
		return err
	}
	if err := e.ledger.Debit(account, ticker, amount); err != nil {
		return err
	}
	e.log.Infow("withdraw", "account", account, "ticker", ticker, "amount", amount)
	return nil
}

// Balances returns all balances of an account keyed by ticker.
func (e *Engine) Balances(account uuid.UUID) (map[string]int64, error) {
	if _, err := e.Account(account); err != nil {
		return nil, err
	}
	return e.ledger.Balances(account), nil
}

func (e *Engine) checkAccountAndInstrument(account uuid.UUID, ticker string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.accounts[account]; !ok {
		return ErrAccountNotFound
	}
	if _, ok := e.instruments[ticker]; !ok {
		return ErrInstrumentNotFound
	}
	return nil
}

// ---- orders ----

// SubmitOrder creates an order, matches it against the resting book and
// settles the fills, all inside the instrument's critical section. It
// returns the order in its final persisted state. Market orders that
// cannot fill completely are rejected with ErrUnfillableMarketOrder and
// leave no trace.
func (e *Engine) SubmitOrder(user uuid.UUID, typ OrderType, dir Direction, ticker string, qty, price int64) (*Order, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: qty must be positive", ErrInvalidOrder)
	}
	switch typ {
	case Limit:
		if price <= 0 {
			return nil, fmt.Errorf("%w: limit order needs a positive price", ErrInvalidOrder)
		}
		// Settlement costs are qty*price at the resting order's price, so
		// rejecting overflowing values here keeps every later product safe.
		if qty > math.MaxInt64/price {
			return nil, fmt.Errorf("%w: order value overflows", ErrInvalidOrder)
		}
	case Market:
		if price != 0 {
			return nil, fmt.Errorf("%w: market order carries no price", ErrInvalidOrder)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidOrder, typ)
	}

	e.mu.RLock()
	_, accOK := e.accounts[user]
	book := e.books[ticker]
	lk := e.bookMu[ticker]
	e.mu.RUnlock()
	if !accOK {
		return nil, ErrAccountNotFound
	}
	if book == nil {
		return nil, ErrInstrumentNotFound
	}

	var trades []*Trade
	order := &Order{
		ID:        uuid.New(),
		UserID:    user,
		Type:      typ,
		Direction: dir,
		Ticker:    ticker,
		Qty:       qty,
		Price:     price,
		Status:    StatusNew,
		Timestamp: time.Now().UTC(),
	}

	err := func() error {
		lk.Lock()
		defer lk.Unlock()

		// Validate the incoming side before matching. A market buy's total
		// cost is unknown here; settlement enforces it per fill.
		if dir == Sell {
			if have := e.ledger.Get(user, ticker); have < qty {
				return fmt.Errorf("%w: %d %s available, selling %d", ErrInsufficientFunds, have, ticker, qty)
			}
		} else if typ == Limit {
			if have := e.ledger.Get(user, RUBTicker); have < qty*price {
				return fmt.Errorf("%w: %d RUB available, order costs %d", ErrInsufficientFunds, have, qty*price)
			}
		}

		order.Seq = e.seq.Add(1)
		if err := e.store.SaveOrder(order); err != nil {
			return fmt.Errorf("persist order: %w", err)
		}

		fills := proposeFills(order, book)

		var err error
		e.mu.Lock()
		trades, err = e.settle(order, fills, book)
		if err == nil {
			e.orders[order.ID] = order
		}
		e.mu.Unlock()
		if err != nil {
			// Rejected before anything applied: drop the persisted row so
			// the order leaves no trace.
			_ = e.store.DeleteOrder(order.ID)
			return err
		}
		return nil
	}()
	if err != nil {
		return nil, err
	}

	e.log.Infow("order_settled",
		"order", order.ID,
		"type", order.Type,
		"direction", order.Direction,
		"ticker", order.Ticker,
		"status", order.Status,
		"filled", order.Filled,
		"trades", len(trades))
	e.notify(ticker, trades)
	return order, nil
}

// CancelOrder transitions an order to CANCELLED. Already-settled fills are
// never reversed. Fails with ErrOrderNotFound unless the order exists and
// belongs to user, and with ErrInvalidOrderState on terminal orders.
func (e *Engine) CancelOrder(id, user uuid.UUID) error {
	e.mu.RLock()
	order, ok := e.orders[id]
	if ok && order.UserID != user {
		ok = false
	}
	var book *Book
	var lk *sync.Mutex
	if ok {
		book = e.books[order.Ticker]
		lk = e.bookMu[order.Ticker]
	}
	e.mu.RUnlock()
	if !ok {
		return ErrOrderNotFound
	}

	// The book may already be gone if the instrument was deleted; the
	// status transition still applies.
	if lk != nil {
		lk.Lock()
		defer lk.Unlock()
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if order.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrInvalidOrderState, order.Status)
	}
	order.Status = StatusCancelled
	if book != nil {
		book.Remove(order.ID)
	}
	if err := e.store.SaveOrder(order); err != nil {
		return fmt.Errorf("persist order: %w", err)
	}
	e.log.Infow("order_cancelled", "order", id, "user", user)
	return nil
}

// Order returns one order owned by user.
func (e *Engine) Order(id, user uuid.UUID) (Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[id]
	if !ok || o.UserID != user {
		return Order{}, ErrOrderNotFound
	}
	return *o, nil
}

// Orders lists all orders of an account in submission order.
func (e *Engine) Orders(user uuid.UUID) []Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Order
	for _, o := range e.orders {
		if o.UserID == user {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// OrderBook returns the aggregated L2 snapshot of a ticker, best price
// first, up to depth levels per side.
func (e *Engine) OrderBook(ticker string, depth int) (bids, asks []Level, err error) {
	e.mu.RLock()
	book := e.books[ticker]
	lk := e.bookMu[ticker]
	e.mu.RUnlock()
	if book == nil {
		return nil, nil, ErrInstrumentNotFound
	}
	lk.Lock()
	defer lk.Unlock()
	return book.BidLevels(depth), book.AskLevels(depth), nil
}

// Transactions returns the most recent trades of a ticker, newest first.
func (e *Engine) Transactions(ticker string, limit int) ([]*Trade, error) {
	e.mu.RLock()
	_, ok := e.instruments[ticker]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrInstrumentNotFound
	}
	return e.store.RecentTrades(ticker, limit)
}

// notify fires the host-service callbacks outside of any engine lock.
func (e *Engine) notify(ticker string, trades []*Trade) {
	if e.OnTrade != nil {
		for _, t := range trades {
			e.OnTrade(t)
		}
	}
	if e.OnBook != nil && len(trades) > 0 {
		e.OnBook(ticker)
	}
}
