package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"pronto-ballbot/internal/repository"
	"pronto-ballbot/pkg/response"
)

// StatsReporter is anything that can describe itself for the stats page.
type StatsReporter interface {
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	dispatcher    StatsSource
	inventoryRepo repository.InventoryRepository
	cache         StatsReporter
	dbType        string
	catalogSize   func() int
	startTime     time.Time
}

// AdminConfig holds the admin handler dependencies. Nil fields are reported
// as not configured.
type AdminConfig struct {
	Dispatcher    StatsSource
	InventoryRepo repository.InventoryRepository
	Cache         StatsReporter
	DBType        string
	CatalogSize   func() int
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	return &AdminHandler{
		dispatcher:    cfg.Dispatcher,
		inventoryRepo: cfg.InventoryRepo,
		cache:         cfg.Cache,
		dbType:        cfg.DBType,
		catalogSize:   cfg.CatalogSize,
		startTime:     time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if h.dispatcher != nil {
		stats["dispatcher"] = h.dispatcher.Stats()
	} else {
		stats["dispatcher"] = notConfigured()
	}

	if h.inventoryRepo != nil {
		stats["inventory"] = reportStats(h.inventoryRepo.GetStats(ctx))
	} else {
		stats["inventory"] = notConfigured()
	}

	if h.cache != nil {
		stats["cursor_cache"] = reportStats(h.cache.Stats(ctx))
	} else {
		stats["cursor_cache"] = notConfigured()
	}

	if h.catalogSize != nil {
		stats["catalog_entries"] = h.catalogSize()
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

func reportStats(s map[string]interface{}, err error) map[string]interface{} {
	if err != nil {
		return map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
	}
	out := make(map[string]interface{}, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out["status"] = "connected"
	return out
}

func notConfigured() map[string]interface{} {
	return map[string]interface{}{"status": "not_configured"}
}
