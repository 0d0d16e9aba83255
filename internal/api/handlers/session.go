package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"equity-backtest/internal/api/models"
	"equity-backtest/internal/broker"
	"equity-backtest/internal/clock"
	"equity-backtest/internal/data"
	"equity-backtest/internal/exchange"
	"equity-backtest/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	errSessionNotFound = errors.New("session not found")
	errTooManySessions = errors.New("too many open sessions")
)

// DefaultMaxSessions caps concurrently open sessions.
const DefaultMaxSessions = 256

// SessionMetrics is notified about session activity.
type SessionMetrics interface {
	SessionOpened()
	SessionClosed()
	OrderSubmitted(accepted bool)
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()      {}
func (nopMetrics) SessionClosed()      {}
func (nopMetrics) OrderSubmitted(bool) {}

// session is one client's simulated market: its own clock, exchange and
// broker over a shared read-only dataset. mu serializes every request
// touching it.
type session struct {
	mu       sync.Mutex
	id       uuid.UUID
	clock    *clock.Clock
	exchange *exchange.Exchange
	broker   *broker.Broker
	done     bool
	lastUsed time.Time
}

// SessionHandler serves the interactive exchange API.
type SessionHandler struct {
	mu          sync.RWMutex
	sessions    map[uuid.UUID]*session
	datasets    *DatasetHandler
	metrics     SessionMetrics
	logger      *zap.Logger
	maxSessions int
}

// NewSessionHandler creates a session handler. metrics and logger may be nil.
func NewSessionHandler(datasets *DatasetHandler, metrics SessionMetrics, logger *zap.Logger) *SessionHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		sessions:    make(map[uuid.UUID]*session),
		datasets:    datasets,
		metrics:     metrics,
		logger:      logger,
		maxSessions: DefaultMaxSessions,
	}
}

// Register mounts the session routes on g.
func (h *SessionHandler) Register(g *gin.RouterGroup) {
	g.POST("/sessions", h.CreateSession)
	g.GET("/sessions/:id", h.GetState)
	g.DELETE("/sessions/:id", h.CloseSession)
	g.POST("/sessions/:id/orders", h.SubmitOrder)
	g.DELETE("/sessions/:id/orders", h.CancelSymbol)
	g.DELETE("/sessions/:id/orders/:orderId", h.CancelOrder)
	g.POST("/sessions/:id/deposit", h.Deposit)
	g.POST("/sessions/:id/withdraw", h.Withdraw)
	g.GET("/sessions/:id/trades", h.GetTrades)
	g.GET("/sessions/:id/quotes", h.GetQuotes)
	g.GET("/sessions/:id/state", h.GetState)
	g.POST("/sessions/:id/tick", h.Tick)
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	ds, err := h.datasets.Load(req.DataSource)
	if err != nil {
		respondError(c, err)
		return
	}
	cost, err := exchange.ParseCost(req.Cost.Kind, req.Cost.Amount)
	if err != nil {
		badRequest(c, "INVALID_COST", err.Error())
		return
	}
	if req.InitialCash.IsNegative() {
		badRequest(c, "INVALID_REQUEST", "initial_cash must not be negative")
		return
	}

	s, err := h.open(ds, cost, req.InitialCash)
	if err != nil {
		respondError(c, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusCreated, s.state())
}

func (h *SessionHandler) open(ds *data.Dataset, cost exchange.Cost, cash decimal.Decimal) (*session, error) {
	id := uuid.New()
	log := h.logger.With(zap.String("session", id.String()))
	clk := clock.New(ds.Schedule)
	ex := exchange.New(clk, ds.Source, cost, exchange.WithLogger(log))
	brk, err := broker.New(broker.Config{
		Exchange: ex,
		Clock:    clk,
		Source:   ds.Source,
		Cost:     ex.Cost(),
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	if cash.IsPositive() {
		if err := brk.Deposit(cash); err != nil {
			return nil, err
		}
	}
	brk.PayDividends()
	s := &session{id: id, clock: clk, exchange: ex, broker: brk, lastUsed: time.Now()}

	h.mu.Lock()
	if len(h.sessions) >= h.maxSessions {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: limit %d", errTooManySessions, h.maxSessions)
	}
	h.sessions[id] = s
	h.mu.Unlock()

	h.metrics.SessionOpened()
	log.Info("session opened", zap.Int("ticks", ds.Schedule.Len()), zap.String("cost", ex.Cost().String()))
	return s, nil
}

// lookup returns the session named by the :id param, locked. The caller
// must unlock it.
func (h *SessionHandler) lookup(c *gin.Context) (*session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "INVALID_SESSION_ID", err.Error())
		return nil, false
	}
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		respondError(c, fmt.Errorf("%w: %s", errSessionNotFound, id))
		return nil, false
	}
	s.mu.Lock()
	s.lastUsed = time.Now()
	return s, true
}

// GetState handles GET /api/v1/sessions/:id
func (h *SessionHandler) GetState(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.state())
}

// CloseSession handles DELETE /api/v1/sessions/:id
func (h *SessionHandler) CloseSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "INVALID_SESSION_ID", err.Error())
		return
	}
	if !h.remove(id) {
		respondError(c, fmt.Errorf("%w: %s", errSessionNotFound, id))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) remove(id uuid.UUID) bool {
	h.mu.Lock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		h.metrics.SessionClosed()
		h.logger.Info("session closed", zap.String("session", id.String()))
	}
	return ok
}

// Sweep closes sessions idle for longer than maxIdle and returns how many
// were closed.
func (h *SessionHandler) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	var stale []uuid.UUID
	h.mu.RLock()
	for id, s := range h.sessions {
		s.mu.Lock()
		if s.lastUsed.Before(cutoff) {
			stale = append(stale, id)
		}
		s.mu.Unlock()
	}
	h.mu.RUnlock()
	n := 0
	for _, id := range stale {
		if h.remove(id) {
			n++
		}
	}
	return n
}

// Len returns the number of open sessions.
func (h *SessionHandler) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// SubmitOrder handles POST /api/v1/sessions/:id/orders
func (h *SessionHandler) SubmitOrder(c *gin.Context) {
	var req models.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	dir, err := model.ParseDirection(req.Direction)
	if err != nil {
		respondError(c, err)
		return
	}
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	defer s.mu.Unlock()
	if s.done {
		respondError(c, clock.ErrEndOfSequence)
		return
	}

	o := model.Order{
		Symbol:    strings.TrimSpace(req.Symbol),
		Direction: dir,
		Type:      model.OrderType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Quantity:  req.Quantity,
		Price:     req.Price,
	}
	id, err := s.broker.SubmitOrder(o)
	h.metrics.OrderSubmitted(err == nil)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, p := range s.broker.PendingOrders() {
		if p.ID == id {
			c.JSON(http.StatusCreated, models.OrderResponse{Order: p})
			return
		}
	}
	respondError(c, fmt.Errorf("%w: order %d accepted but not pending", broker.ErrInconsistentState, id))
}

// CancelOrder handles DELETE /api/v1/sessions/:id/orders/:orderId
func (h *SessionHandler) CancelOrder(c *gin.Context) {
	oid, err := strconv.ParseUint(c.Param("orderId"), 10, 64)
	if err != nil {
		badRequest(c, "INVALID_ORDER_ID", err.Error())
		return
	}
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	defer s.mu.Unlock()
	if err := s.broker.CancelOrder(model.OrderID(oid)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelSymbol handles DELETE /api/v1/sessions/:id/orders?symbol=ABC
func (h *SessionHandler) CancelSymbol(c *gin.Context) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	if symbol == "" {
		badRequest(c, "INVALID_PARAM", "symbol is required")
		return
	}
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	defer s.mu.Unlock()
	removed := s.broker.CancelSymbol(symbol)
	if removed == nil {
		removed = []model.Order{}
	}
	c.JSON(http.StatusOK, models.CancelResponse{Cancelled: removed})
}

// Deposit handles POST /api/v1/sessions/:id/deposit
func (h *SessionHandler) Deposit(c *gin.Context) {
	h.moveCash(c, (*broker.Broker).Deposit)
}

// Withdraw handles POST /api/v1/sessions/:id/withdraw. Cash reserved for
// pending buys cannot be withdrawn.
func (h *SessionHandler) Withdraw(c *gin.Context) {
	h.moveCash(c, (*broker.Broker).Withdraw)
}

func (h *SessionHandler) moveCash(c *gin.Context, move func(*broker.Broker, decimal.Decimal) error) {
	var req models.CashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}
	if !req.Amount.IsPositive() {
		badRequest(c, "INVALID_REQUEST", "amount must be positive")
		return
	}
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	defer s.mu.Unlock()
	if s.done {
		respondError(c, clock.ErrEndOfSequence)
		return
	}
	if err := move(s.broker, req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.state())
}

// GetTrades handles GET /api/v1/sessions/:id/trades?from=N
func (h *SessionHandler) GetTrades(c *gin.Context) {
	from := 0
	if raw := c.Query("from"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "INVALID_PARAM", "from must be a non-negative tick")
			return
		}
		from = n
	}
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	defer s.mu.Unlock()
	trades := s.exchange.Trades(clock.Tick(from))
	if trades == nil {
		trades = []model.Trade{}
	}
	c.JSON(http.StatusOK, models.TradesResponse{Trades: trades, Next: s.settledThrough() + 1})
}

// GetQuotes handles GET /api/v1/sessions/:id/quotes?symbols=A,B
func (h *SessionHandler) GetQuotes(c *gin.Context) {
	var symbols []string
	if raw := c.Query("symbols"); raw != "" {
		for _, sym := range strings.Split(raw, ",") {
			if sym = strings.TrimSpace(sym); sym != "" {
				symbols = append(symbols, sym)
			}
		}
	}
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	defer s.mu.Unlock()
	quotes := s.exchange.Quotes(symbols...)
	if quotes == nil {
		quotes = []model.Quote{}
	}
	c.JSON(http.StatusOK, models.QuotesResponse{Tick: s.clock.Tick(), Quotes: quotes})
}

// Tick handles POST /api/v1/sessions/:id/tick. It settles the current tick,
// filling orders from earlier ticks at this tick's quotes, then advances the
// clock and credits dividends due at the new tick. Orders submitted during a
// tick therefore fill when the following tick is settled. After the last tick
// is settled the session is done and further ticks return END_OF_SEQUENCE.
func (h *SessionHandler) Tick(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	defer s.mu.Unlock()
	if s.done {
		respondError(c, clock.ErrEndOfSequence)
		return
	}

	settled := s.clock.Tick()
	trades := s.exchange.Advance()
	if err := s.broker.Apply(trades); err != nil {
		h.logger.Error("session broker failed", zap.String("session", s.id.String()), zap.Error(err))
		respondError(c, err)
		return
	}
	if err := s.clock.Advance(); errors.Is(err, clock.ErrEndOfSequence) {
		s.done = true
	} else {
		s.broker.PayDividends()
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	c.JSON(http.StatusOK, models.TickResponse{
		Settled: settled,
		Tick:    s.clock.Tick(),
		Time:    s.clock.Now(),
		Done:    s.done,
		Trades:  trades,
	})
}

// settledThrough is the last settled tick, or -1 before the first.
func (s *session) settledThrough() clock.Tick {
	if s.done {
		return s.clock.Tick()
	}
	return s.clock.Tick() - 1
}

func (s *session) state() models.SessionResponse {
	pending := s.broker.PendingOrders()
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	positions := s.broker.Positions()
	if positions == nil {
		positions = []model.Position{}
	}
	return models.SessionResponse{
		ID:         s.id,
		Tick:       s.clock.Tick(),
		Time:       s.clock.Now(),
		Ticks:      s.clock.Len(),
		Done:       s.done,
		Cash:       s.broker.Cash(),
		TotalValue: s.broker.TotalValue(),
		Positions:  positions,
		Pending:    pending,
	}
}
