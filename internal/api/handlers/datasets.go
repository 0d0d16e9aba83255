package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"equity-backtest/internal/api/models"
	"equity-backtest/internal/config"
	"equity-backtest/internal/data"

	"github.com/gin-gonic/gin"
)

var errDataSource = errors.New("invalid data source")

// DatasetHandler lists dataset files and loads them for sessions and runs.
type DatasetHandler struct {
	dir   string
	cache *data.DatasetCache
}

// NewDatasetHandler creates a dataset handler over dir. cache may be nil.
func NewDatasetHandler(dir string, cache *data.DatasetCache) *DatasetHandler {
	return &DatasetHandler{dir: dir, cache: cache}
}

// Dir returns the data directory.
func (h *DatasetHandler) Dir() string { return h.dir }

// ListDatasets handles GET /api/v1/datasets
func (h *DatasetHandler) ListDatasets(c *gin.Context) {
	infos, err := data.ListDatasets(h.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusOK, gin.H{"datasets": []models.DatasetInfo{}, "count": 0})
			return
		}
		respondError(c, err)
		return
	}
	datasets := make([]models.DatasetInfo, len(infos))
	for i, d := range infos {
		datasets[i] = models.DatasetInfo{ID: d.ID, Format: d.Format, Size: d.Size}
	}
	c.JSON(http.StatusOK, gin.H{"datasets": datasets, "count": len(datasets)})
}

// Load resolves a request's data source to a dataset.
func (h *DatasetHandler) Load(ds models.DataSourceConfig) (*data.Dataset, error) {
	switch {
	case ds.DatasetID != "" && ds.Random != nil:
		return nil, fmt.Errorf("%w: set dataset_id or random, not both", errDataSource)
	case ds.DatasetID != "":
		path, err := data.ResolveDataset(h.dir, ds.DatasetID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errDataSource, err)
		}
		return h.cache.Load(path)
	case ds.Random != nil:
		p, err := ds.Random.Params()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errDataSource, err)
		}
		key := randomKey(*ds.Random)
		if h.cache != nil {
			if cached, ok := h.cache.Get(key); ok {
				return cached, nil
			}
		}
		out, err := data.RandomWalk(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errDataSource, err)
		}
		if h.cache != nil {
			h.cache.Put(key, out)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: dataset_id or random is required", errDataSource)
}

func randomKey(r config.RandomConfig) string {
	return fmt.Sprintf("random:%s:%s:%d:%s:%d:%g:%g:%g:%g:%g",
		strings.Join(r.Symbols, ","), r.Start, r.Length, r.Frequency, r.Seed,
		r.StartPrice, r.Drift, r.Volatility, r.Spread, r.GapProb)
}
