package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/avoskov/rubex/pkg/exchange"
)

// Server is the REST and WebSocket host service in front of the engine.
// Authentication is an API key in the Authorization header
// ("TOKEN <key>"); admin endpoints additionally require the ADMIN role.
type Server struct {
	engine *exchange.Engine
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
	depth  int
}

// NewServer creates the API server and hooks the engine's trade and book
// callbacks to the WebSocket hub. depth caps orderbook snapshot levels.
func NewServer(engine *exchange.Engine, logger *zap.SugaredLogger, depth int) *Server {
	s := &Server{
		engine: engine,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		log:    logger,
		depth:  depth,
	}
	engine.OnTrade = s.BroadcastTrade
	engine.OnBook = s.BroadcastOrderbook
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/public/register", s.handleRegister).Methods("POST")
	api.HandleFunc("/public/instrument", s.handleListInstruments).Methods("GET")
	api.HandleFunc("/public/orderbook/{ticker}", s.handleOrderbook).Methods("GET")
	api.HandleFunc("/public/transactions/{ticker}", s.handleTransactions).Methods("GET")

	api.HandleFunc("/balance", s.auth(s.handleBalances)).Methods("GET")
	api.HandleFunc("/order", s.auth(s.handleCreateOrder)).Methods("POST")
	api.HandleFunc("/order", s.auth(s.handleListOrders)).Methods("GET")
	api.HandleFunc("/order/{order_id}", s.auth(s.handleGetOrder)).Methods("GET")
	api.HandleFunc("/order/{order_id}", s.auth(s.handleCancelOrder)).Methods("DELETE")

	api.HandleFunc("/admin/instrument", s.admin(s.handleAddInstrument)).Methods("POST")
	api.HandleFunc("/admin/instrument/{ticker}", s.admin(s.handleDeleteInstrument)).Methods("DELETE")
	api.HandleFunc("/admin/balance/deposit", s.admin(s.handleDeposit)).Methods("POST")
	api.HandleFunc("/admin/balance/withdraw", s.admin(s.handleWithdraw)).Methods("POST")
	api.HandleFunc("/admin/user/{user_id}", s.admin(s.handleDeleteUser)).Methods("DELETE")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves HTTP on addr, blocking.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ---- middleware ----

type authedHandler func(w http.ResponseWriter, r *http.Request, acc *exchange.Account)

func (s *Server) auth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "TOKEN ") {
			respondError(w, http.StatusUnauthorized, "invalid or missing Authorization header")
			return
		}
		key := strings.TrimSpace(strings.TrimPrefix(header, "TOKEN "))
		acc, err := s.engine.AccountByKey(key)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next(w, r, acc)
	}
}

func (s *Server) admin(next authedHandler) http.HandlerFunc {
	return s.auth(func(w http.ResponseWriter, r *http.Request, acc *exchange.Account) {
		if acc.Role != exchange.RoleAdmin {
			respondError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r, acc)
	})
}

// ---- public handlers ----

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req NewUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	acc, err := s.engine.Register(req.Name)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, UserResponse{ID: acc.ID, Name: acc.Name, Role: string(acc.Role), APIKey: acc.APIKey})
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.engine.Instruments())
}

func (s *Server) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	depth := s.depth
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			depth = n
		}
	}
	bids, asks, err := s.engine.OrderBook(ticker, depth)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	book := L2OrderBook{BidLevels: bids, AskLevels: asks}
	if book.BidLevels == nil {
		book.BidLevels = []exchange.Level{}
	}
	if book.AskLevels == nil {
		book.AskLevels = []exchange.Level{}
	}
	respondJSON(w, book)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := s.engine.Transactions(ticker, limit)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	out := make([]TransactionResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, TransactionResponse{Ticker: t.Ticker, Amount: t.Qty, Price: t.Price, Timestamp: t.Timestamp})
	}
	respondJSON(w, out)
}

// ---- authenticated handlers ----

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request, acc *exchange.Account) {
	balances, err := s.engine.Balances(acc.ID)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, balances)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request, acc *exchange.Account) {
	var body OrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	typ := exchange.Market
	var price int64
	if body.Price != nil {
		typ = exchange.Limit
		price = *body.Price
	}
	order, err := s.engine.SubmitOrder(acc.ID, typ, body.Direction, body.Ticker, body.Qty, price)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, CreateOrderResponse{Success: true, OrderID: order.ID})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request, acc *exchange.Account) {
	orders := s.engine.Orders(acc.ID)
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse(o))
	}
	respondJSON(w, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, acc *exchange.Account) {
	id, err := uuid.Parse(mux.Vars(r)["order_id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	order, err := s.engine.Order(id, acc.ID)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, orderResponse(order))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request, acc *exchange.Account) {
	id, err := uuid.Parse(mux.Vars(r)["order_id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	if err := s.engine.CancelOrder(id, acc.ID); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, OkResponse{Success: true})
}

// ---- admin handlers ----

func (s *Server) handleAddInstrument(w http.ResponseWriter, r *http.Request, acc *exchange.Account) {
	var req InstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.AddInstrument(req.Ticker, req.Name); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, OkResponse{Success: true})
}

func (s *Server) handleDeleteInstrument(w http.ResponseWriter, r *http.Request, acc *exchange.Account) {
	if err := s.engine.DeleteInstrument(mux.Vars(r)["ticker"]); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, OkResponse{Success: true})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, acc *exchange.Account) {
	var req BalanceChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.Deposit(req.UserID, req.Ticker, req.Amount); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, OkResponse{Success: true})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, acc *exchange.Account) {
	var req BalanceChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.Withdraw(req.UserID, req.Ticker, req.Amount); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, OkResponse{Success: true})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, acc *exchange.Account) {
	id, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	deleted, err := s.engine.DeleteAccount(id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, UserResponse{ID: deleted.ID, Name: deleted.Name, Role: string(deleted.Role), APIKey: deleted.APIKey})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ---- broadcasts ----

// BroadcastTrade pushes a settled trade to "trades:<ticker>" subscribers.
func (s *Server) BroadcastTrade(t *exchange.Trade) {
	s.hub.BroadcastToChannel("trades:"+t.Ticker, TradeUpdate{
		Type:      "trade",
		Ticker:    t.Ticker,
		Qty:       t.Qty,
		Price:     t.Price,
		Timestamp: t.Timestamp,
	})
}

// BroadcastOrderbook pushes a fresh L2 snapshot to "orderbook:<ticker>"
// subscribers.
func (s *Server) BroadcastOrderbook(ticker string) {
	bids, asks, err := s.engine.OrderBook(ticker, s.depth)
	if err != nil {
		return
	}
	s.hub.BroadcastToChannel("orderbook:"+ticker, OrderbookUpdate{
		Type:      "orderbook",
		Ticker:    ticker,
		BidLevels: bids,
		AskLevels: asks,
		Timestamp: time.Now().UTC(),
	})
}

// ---- helpers ----

func orderResponse(o exchange.Order) OrderResponse {
	resp := OrderResponse{
		ID:        o.ID,
		Status:    o.Status,
		UserID:    o.UserID,
		Timestamp: o.Timestamp,
		Body: OrderBody{
			Direction: o.Direction,
			Ticker:    o.Ticker,
			Qty:       o.Qty,
		},
	}
	if o.Type == exchange.Limit {
		price := o.Price
		filled := o.Filled
		resp.Body.Price = &price
		resp.Filled = &filled
	}
	return resp
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exchange.ErrInstrumentNotFound),
		errors.Is(err, exchange.ErrAccountNotFound),
		errors.Is(err, exchange.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, exchange.ErrInstrumentExists),
		errors.Is(err, exchange.ErrAccountExists),
		errors.Is(err, exchange.ErrInstrumentProtected),
		errors.Is(err, exchange.ErrInvalidTicker),
		errors.Is(err, exchange.ErrInvalidName),
		errors.Is(err, exchange.ErrInvalidOrder),
		errors.Is(err, exchange.ErrInvalidOrderState),
		errors.Is(err, exchange.ErrInvalidAmount),
		errors.Is(err, exchange.ErrInsufficientFunds),
		errors.Is(err, exchange.ErrUnfillableMarketOrder):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Errorw("internal_error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Detail: detail})
}
