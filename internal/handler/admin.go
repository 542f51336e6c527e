package handler

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"lootcase-api/internal/repository"
	"lootcase-api/internal/service"
	"lootcase-api/pkg/apierror"
	"lootcase-api/pkg/response"
)

// StatsSource reports storage statistics.
type StatsSource interface {
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// AdminDeps groups what the admin handler reports on. Nil members are
// reported as not configured.
type AdminDeps struct {
	Store      StatsSource
	AuditRepo  repository.AuditRepository
	AuditStats func() service.AuditStats
	GateStats  func() map[string]map[string]int64
	LimiterLen func() int
	StoreType  string
	AuditType  string
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	deps      AdminDeps
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	return &AdminHandler{
		deps:      deps,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().UTC().Format(time.RFC3339)
	stats["store_type"] = h.deps.StoreType
	stats["audit_type"] = h.deps.AuditType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if h.deps.Store != nil {
		storeStats, err := h.deps.Store.GetStats(ctx)
		if err == nil {
			storeStats["status"] = "connected"
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["store"] = map[string]interface{}{"status": "not_configured"}
	}

	if h.deps.AuditStats != nil {
		stats["audit_queue"] = h.deps.AuditStats()
	}

	limits := map[string]interface{}{}
	if h.deps.GateStats != nil {
		limits["gates"] = h.deps.GateStats()
	}
	if h.deps.LimiterLen != nil {
		limits["tracked_keys"] = h.deps.LimiterLen()
	}
	stats["rate_limit"] = limits

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// ListAudit handles GET /api/v1/admin/audit?page=&limit=
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.deps.AuditRepo == nil {
		response.Error(w, apierror.ServiceUnavailable("audit log not configured"))
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	entries, total, err := h.deps.AuditRepo.ListAuditEntries(r.Context(), limit, (page-1)*limit)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to read audit log"))
		return
	}

	response.Paginated(w, entries, page, limit, total)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
