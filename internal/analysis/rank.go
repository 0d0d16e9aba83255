package analysis

import (
	"sort"

	"equity-backtest/internal/backtest"
)

type Ranked struct {
	Name string `json:"name"`
	Summary
}

// RankResults summarizes each result and sorts descending by TotalReturn.
// Ties are broken by name so the order is stable across runs.
func RankResults(results []*backtest.Result) []Ranked {
	out := make([]Ranked, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		out = append(out, Ranked{Name: r.Name, Summary: Summarize(r.History)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalReturn != out[j].TotalReturn {
			return out[i].TotalReturn > out[j].TotalReturn
		}
		return out[i].Name < out[j].Name
	})
	return out
}
