package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/moodtrail/tracker/internal/httputil"
)

type hostStats struct {
	MemoryTotal       uint64  `json:"memoryTotal,omitempty"`
	MemoryUsedPercent float64 `json:"memoryUsedPercent,omitempty"`
	Load1             float64 `json:"load1,omitempty"`
	Load5             float64 `json:"load5,omitempty"`
	Load15            float64 `json:"load15,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Database  string    `json:"database"`
	Host      hostStats `json:"host"`
	Timestamp time.Time `json:"timestamp"`
}

// health reports liveness. A failed database ping answers 503.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Version:   h.opts.Version,
		Database:  "memory",
		Host:      collectHost(r.Context()),
		Timestamp: time.Now().UTC(),
	}
	status := http.StatusOK
	if h.opts.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.DB.PingContext(ctx); err != nil {
			h.log.WithContext(r.Context()).WithError(err).Warn("database ping failed")
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	httputil.WriteJSON(w, status, resp)
}

// collectHost reads memory and load figures. Platforms without them report
// zeros.
func collectHost(ctx context.Context) hostStats {
	var hs hostStats
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		hs.MemoryTotal = vm.Total
		hs.MemoryUsedPercent = vm.UsedPercent
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		hs.Load1, hs.Load5, hs.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	return hs
}
