package handlers

import (
	"net/http"

	"equity-backtest/internal/api/models"
	"equity-backtest/internal/strategy"

	"github.com/gin-gonic/gin"
)

// StrategyHandler handles strategy-related requests
type StrategyHandler struct{}

// NewStrategyHandler creates a new strategy handler
func NewStrategyHandler() *StrategyHandler {
	return &StrategyHandler{}
}

var strategyInfo = map[string]models.StrategyInfo{
	"static_weight": {
		Name:        "static_weight",
		Description: "Holds fixed target weights of total portfolio value and rebalances to them on a schedule. Weights must be non-negative and sum to at most 1; the rest stays in cash.",
		Parameters: []models.ParameterInfo{
			{
				Name:        "weights",
				Type:        "map",
				Description: "Target weight per symbol, e.g. {\"ABC\": 0.5, \"BCD\": 0.5}",
			},
			{
				Name:        "rebalance",
				Type:        "string",
				Description: "once, daily, weekly, monthly, month_end or every",
				Default:     "monthly",
			},
			{
				Name:        "every",
				Type:        "int",
				Description: "Ticks between rebalances when rebalance is every",
			},
		},
	},
	"buy_and_hold": {
		Name:        "buy_and_hold",
		Description: "Buys the target weights on the first tick and never trades again.",
		Parameters: []models.ParameterInfo{
			{
				Name:        "weights",
				Type:        "map",
				Description: "Target weight per symbol",
			},
		},
	},
}

// ListStrategies handles GET /api/v1/strategies
func (h *StrategyHandler) ListStrategies(c *gin.Context) {
	names := strategy.Names()
	strategies := make([]models.StrategyInfo, 0, len(names))
	for _, n := range names {
		if info, ok := strategyInfo[n]; ok {
			strategies = append(strategies, info)
			continue
		}
		strategies = append(strategies, models.StrategyInfo{Name: n, Parameters: []models.ParameterInfo{}})
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}
