// Package api wires the HTTP surface: interactive exchange sessions, batch
// backtests and the run store.
package api

import (
	"net/http"

	"equity-backtest/internal/api/handlers"
	"equity-backtest/internal/api/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps are the handlers and settings the router needs. Metrics may be nil.
type Deps struct {
	Logger       *zap.Logger
	Datasets     *handlers.DatasetHandler
	Sessions     *handlers.SessionHandler
	Backtests    *handlers.BacktestHandler
	Strategies   *handlers.StrategyHandler
	Metrics      http.Handler
	AllowOrigins []string
}

// NewRouter builds the gin engine. Call gin.SetMode before it.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(middleware.CORS(d.AllowOrigins))
	router.Use(middleware.Logger(d.Logger))
	router.Use(middleware.ErrorHandler(d.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": d.Sessions.Len()})
	})
	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics))
	}

	api := router.Group("/api/v1")
	{
		api.POST("/backtest", d.Backtests.RunBacktest)
		api.POST("/backtest/compare", d.Backtests.CompareBacktests)
		api.GET("/runs", d.Backtests.ListRuns)
		api.GET("/runs/:id/history", d.Backtests.GetHistory)
		api.DELETE("/runs/:id", d.Backtests.DeleteRun)

		api.GET("/strategies", d.Strategies.ListStrategies)
		api.GET("/datasets", d.Datasets.ListDatasets)

		d.Sessions.Register(api)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
	})
	return router
}
