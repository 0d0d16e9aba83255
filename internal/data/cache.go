package data

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"time"
)

type cacheEntry struct {
	dataset   *Dataset
	modTime   time.Time
	expiresAt time.Time
}

// DatasetCache keeps parsed datasets in memory so repeated API requests over
// the same file do not re-read it. Entries expire after ttl or when the file
// changes on disk. Cached datasets are immutable and may be shared by runs.
type DatasetCache struct {
	mu    sync.RWMutex
	store map[string]*cacheEntry
	ttl   time.Duration
	stop  chan struct{}
	once  sync.Once
}

// NewDatasetCache starts a cache with a background sweep of expired entries.
// Call Close to stop the sweep.
func NewDatasetCache(ttl time.Duration) *DatasetCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &DatasetCache{
		store: make(map[string]*cacheEntry),
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go c.cleanup(5 * time.Minute)
	return c
}

// Load returns the cached dataset for path, reading it with LoadFile on a
// miss. A nil cache always reads from disk.
func (c *DatasetCache) Load(path string) (*Dataset, error) {
	if c == nil {
		return LoadFile(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	k := CacheKey(path)

	c.mu.RLock()
	entry, ok := c.store[k]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) && entry.modTime.Equal(info.ModTime()) {
		return entry.dataset, nil
	}

	ds, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.store[k] = &cacheEntry{dataset: ds, modTime: info.ModTime(), expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return ds, nil
}

// Put stores a dataset under an arbitrary name, e.g. a generated one.
func (c *DatasetCache) Put(name string, ds *Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[CacheKey(name)] = &cacheEntry{dataset: ds, expiresAt: time.Now().Add(c.ttl)}
}

// Get returns a dataset stored with Put.
func (c *DatasetCache) Get(name string) (*Dataset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.store[CacheKey(name)]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.dataset, true
}

// Len reports the number of entries, expired or not.
func (c *DatasetCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Clear removes all entries.
func (c *DatasetCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[string]*cacheEntry)
}

// Close stops the background sweep.
func (c *DatasetCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *DatasetCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired(time.Now())
		}
	}
}

func (c *DatasetCache) evictExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, entry := range c.store {
		if now.After(entry.expiresAt) {
			delete(c.store, k)
		}
	}
}

// CacheKey hashes a name to a fixed-size key.
func CacheKey(name string) string {
	hash := sha256.Sum256([]byte(name))
	return hex.EncodeToString(hash[:])
}
