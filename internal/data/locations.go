package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DatasetInfo describes one data file available to the API server.
type DatasetInfo struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

// ListDatasets returns the .json and .csv files in dir. The id is the file
// name without extension.
func ListDatasets(dir string) ([]DatasetInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}
	var out []DatasetInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".json" && ext != ".csv" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, DatasetInfo{
			ID:     strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Path:   filepath.Join(dir, e.Name()),
			Format: strings.TrimPrefix(ext, "."),
			Size:   info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ResolveDataset maps a dataset id to its file in dir.
func ResolveDataset(dir, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid dataset id %q", id)
	}
	for _, ext := range []string{".json", ".csv"} {
		p := filepath.Join(dir, id+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("dataset %q not found in %s", id, dir)
}

// DefaultDataDir returns BT_DATA_DIR or ./data.
func DefaultDataDir() string {
	if dir := os.Getenv("BT_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}
