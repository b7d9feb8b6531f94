package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// StagedRow is one structured row extracted from a clean batch.
type StagedRow struct {
	RowNo   int    `json:"row_no"`
	Content string `json:"content"`
}

// StagedBatch is the unit the load stage hands to a warehouse backend.
type StagedBatch struct {
	FileID   string      `json:"file_id"`
	RegionID string      `json:"region_id"`
	Rows     []StagedRow `json:"rows"`
}

// LoadResult summarizes a completed load.
//
// CacheHit reports that the merge found every row of a non-empty batch
// already present, meaning the same file was loaded before.
type LoadResult struct {
	RowsLoaded     int64 `json:"rows_loaded"`
	BytesProcessed int64 `json:"bytes_processed"`
	CacheHit       bool  `json:"cache_hit"`
}

// Warehouse loads staged batches into durable storage. Load must be
// idempotent per file: repeating a load for the same batch may not duplicate
// rows.
type Warehouse interface {
	Load(ctx context.Context, batch StagedBatch) (LoadResult, error)
	RowCount(ctx context.Context, fileID string) (int64, error)
	Close() error
}

// Factory opens a backend from a full DSN, scheme included.
type Factory func(dsn string) (Warehouse, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register installs a backend factory for a DSN scheme. Called from backend
// init functions.
func Register(scheme string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[scheme]; exists {
		panic("warehouse: duplicate backend registration for " + scheme)
	}
	registry[scheme] = factory
}

// Open resolves a DSN of the form "scheme:rest" against the registry.
func Open(dsn string) (Warehouse, error) {
	scheme, _, found := strings.Cut(dsn, ":")
	if !found || scheme == "" {
		return nil, fmt.Errorf("warehouse DSN %q lacks a scheme", dsn)
	}

	registryMu.RLock()
	factory, ok := registry[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown warehouse backend %q (registered: %s)", scheme, strings.Join(schemes(), ", "))
	}
	return factory(dsn)
}

func schemes() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
