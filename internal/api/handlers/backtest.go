package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"equity-backtest/internal/analysis"
	"equity-backtest/internal/api/models"
	"equity-backtest/internal/backtest"
	"equity-backtest/internal/config"
	"equity-backtest/internal/model"
	"equity-backtest/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunStore persists finished runs. *storage.SQLiteStore implements it.
type RunStore interface {
	SaveResult(ctx context.Context, res *backtest.Result) error
	ListRuns(ctx context.Context) ([]storage.RunSummary, error)
	GetRun(ctx context.Context, id uuid.UUID) (storage.RunSummary, error)
	LoadHistory(ctx context.Context, id uuid.UUID) (backtest.History, error)
	LoadTrades(ctx context.Context, id uuid.UUID) ([]model.Trade, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error
}

var errNoStore = errors.New("run store is not configured")

// BacktestHandler handles backtest-related requests
type BacktestHandler struct {
	datasets *DatasetHandler
	store    RunStore
	observer backtest.Observer
	logger   *zap.Logger
	defaults config.Config
}

// NewBacktestHandler creates a new backtest handler. defaults supplies the
// cost, initial cash and worker count when a request omits them. store and
// observer may be nil.
func NewBacktestHandler(datasets *DatasetHandler, store RunStore, observer backtest.Observer, logger *zap.Logger, defaults config.Config) *BacktestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.InitialCash.IsZero() {
		defaults.InitialCash = config.DefaultInitialCash
	}
	return &BacktestHandler{datasets: datasets, store: store, observer: observer, logger: logger, defaults: defaults}
}

// RunBacktest handles POST /api/v1/backtest
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	req, results, ok := h.run(c)
	if !ok {
		return
	}
	resp := models.BacktestResponse{Runs: make([]models.RunResponse, 0, len(results))}
	for i, res := range results {
		if res == nil {
			resp.Runs = append(resp.Runs, models.RunResponse{Name: runName(req.Runs[i], i), Status: "failed", Error: "run panicked"})
			continue
		}
		if req.Options.Save {
			if h.store == nil {
				respondError(c, errNoStore)
				return
			}
			if err := h.store.SaveResult(c.Request.Context(), res); err != nil {
				h.logger.Error("failed to save run", zap.String("run_id", res.ID.String()), zap.Error(err))
				respondError(c, err)
				return
			}
		}
		resp.Runs = append(resp.Runs, buildRunResponse(res, req.Options.IncludeHistory))
	}
	c.JSON(http.StatusOK, resp)
}

// CompareBacktests handles POST /api/v1/backtest/compare
func (h *BacktestHandler) CompareBacktests(c *gin.Context) {
	_, results, ok := h.run(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.CompareResponse{Rankings: analysis.RankResults(results)})
}

func (h *BacktestHandler) run(c *gin.Context) (models.BacktestRequest, []*backtest.Result, bool) {
	var req models.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return req, nil, false
	}
	cfg, err := h.buildConfig(req)
	if err != nil {
		badRequest(c, "INVALID_CONFIG", err.Error())
		return req, nil, false
	}
	specs, err := cfg.Specs()
	if err != nil {
		badRequest(c, "INVALID_CONFIG", err.Error())
		return req, nil, false
	}
	ds, err := h.datasets.Load(req.DataSource)
	if err != nil {
		respondError(c, err)
		return req, nil, false
	}

	opts := []backtest.Option{backtest.WithLogger(h.logger), backtest.WithWorkers(cfg.Workers)}
	if h.observer != nil {
		opts = append(opts, backtest.WithObserver(h.observer))
	}
	engine, err := backtest.New(ds.Schedule, ds.Source, opts...)
	if err != nil {
		respondError(c, err)
		return req, nil, false
	}
	results, err := engine.RunAll(c.Request.Context(), specs)
	if err != nil {
		h.logger.Warn("some runs failed", zap.Error(err))
	}
	return req, results, true
}

// buildConfig overlays the request on the server defaults.
func (h *BacktestHandler) buildConfig(req models.BacktestRequest) (*config.Config, error) {
	override := config.Config{
		Cost:        config.CostConfig{Kind: req.Cost.Kind, Amount: req.Cost.Amount},
		InitialCash: req.InitialCash,
	}
	for _, r := range req.Runs {
		override.Runs = append(override.Runs, config.RunConfig{
			Name:     r.Name,
			Strategy: config.StrategyConfig{Name: r.Strategy.Name, Params: r.Strategy.Params},
		})
	}
	cfg := config.Merge(h.defaults, override)
	if !cfg.InitialCash.IsPositive() {
		return nil, errors.New("initial_cash must be positive")
	}
	if _, err := cfg.Cost.Model(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func runName(r models.RunConfig, i int) string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("%s-%d", strings.ToLower(r.Strategy.Name), i+1)
}

func runStatus(res *backtest.Result) string {
	switch {
	case res.Err != nil:
		return "failed"
	case res.Truncated:
		return "truncated"
	}
	return "complete"
}

func buildRunResponse(res *backtest.Result, includeHistory bool) models.RunResponse {
	out := models.RunResponse{
		ID:        res.ID,
		Name:      res.Name,
		Strategy:  res.Strategy,
		Status:    runStatus(res),
		Summary:   analysis.Summarize(res.History),
		Trades:    len(res.Trades),
		Pending:   len(res.Pending),
		TotalCost: res.TotalCost(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if includeHistory {
		out.History = res.History
	}
	return out
}

// ListRuns handles GET /api/v1/runs
func (h *BacktestHandler) ListRuns(c *gin.Context) {
	if h.store == nil {
		respondError(c, errNoStore)
		return
	}
	runs, err := h.store.ListRuns(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if runs == nil {
		runs = []storage.RunSummary{}
	}
	c.JSON(http.StatusOK, models.RunsResponse{Runs: runs})
}

// GetHistory handles GET /api/v1/runs/:id/history
func (h *BacktestHandler) GetHistory(c *gin.Context) {
	if h.store == nil {
		respondError(c, errNoStore)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "INVALID_RUN_ID", err.Error())
		return
	}
	ctx := c.Request.Context()
	run, err := h.store.GetRun(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	history, err := h.store.LoadHistory(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	trades, err := h.store.LoadTrades(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	c.JSON(http.StatusOK, models.HistoryResponse{
		Run:     run,
		Summary: analysis.Summarize(history),
		History: history,
		Trades:  trades,
	})
}

// DeleteRun handles DELETE /api/v1/runs/:id
func (h *BacktestHandler) DeleteRun(c *gin.Context) {
	if h.store == nil {
		respondError(c, errNoStore)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "INVALID_RUN_ID", err.Error())
		return
	}
	if err := h.store.DeleteRun(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
