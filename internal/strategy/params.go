package strategy

import (
	"fmt"
	"sort"
	"strings"

	"equity-backtest/internal/model"

	"github.com/shopspring/decimal"
)

// Names lists the strategies Build understands.
func Names() []string { return []string{"static_weight", "buy_and_hold"} }

// Build constructs a named strategy from loosely typed config params, as
// decoded from YAML or JSON. Every call returns a fresh instance.
//
// static_weight: weights (map symbol -> number), rebalance (string), every (int)
// buy_and_hold:  weights
func Build(name string, params map[string]any) (Strategy, error) {
	weights, err := weightsParam(params)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "static_weight", "static":
		sched, err := ParseSchedule(mustStr(params, "rebalance", string(Monthly)), int(mustNum(params, "every", 0)))
		if err != nil {
			return nil, err
		}
		return newStatic(weights, sched)
	case "buy_and_hold":
		return newStatic(weights, &Schedule{Frequency: Once})
	}
	return nil, fmt.Errorf("unsupported strategy: %q", name)
}

func newStatic(weights model.Allocation, sched *Schedule) (Strategy, error) {
	s, err := NewStaticWeight(weights, sched)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func weightsParam(params map[string]any) (model.Allocation, error) {
	raw, ok := params["weights"]
	if !ok || raw == nil {
		return nil, errNoWeights
	}
	out := model.Allocation{}
	add := func(k string, v any) error {
		w, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("weight for %s is not a number: %v", k, v)
		}
		out[k] = decimal.NewFromFloat(w)
		return nil
	}
	switch m := raw.(type) {
	case map[string]any:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := add(k, m[k]); err != nil {
				return nil, err
			}
		}
	case map[string]float64:
		for k, v := range m {
			out[k] = decimal.NewFromFloat(v)
		}
	default:
		return nil, fmt.Errorf("weights must be a map of symbol to weight, got %T", raw)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func mustNum(m map[string]any, key string, def float64) float64 {
	if v, ok := m[key]; ok && v != nil {
		if x, ok := toFloat(v); ok {
			return x
		}
	}
	return def
}

func mustStr(m map[string]any, key string, def string) string {
	if v, ok := m[key]; ok && v != nil {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return def
}
