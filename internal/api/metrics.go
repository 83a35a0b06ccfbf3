package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	State         string         `json:"state"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Dispatch      DispatchTotals `json:"dispatch"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DispatchTotals sums the counters of all devices.
type DispatchTotals struct {
	Devices    int    `json:"devices"`
	Ready      int    `json:"ready"`
	QueueDepth int    `json:"queue_depth"`
	Commands   uint64 `json:"commands_total"`
	Errors     uint64 `json:"errors_total"`
}

// handleMetrics returns process and dispatch metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		State:         s.state(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	for _, st := range s.snapshot() {
		metrics.Dispatch.Devices++
		if st.Ready && !st.Stopped {
			metrics.Dispatch.Ready++
		}
		metrics.Dispatch.QueueDepth += st.QueueDepth
		metrics.Dispatch.Commands += st.Commands
		metrics.Dispatch.Errors += st.Errors
	}

	writeJSON(w, http.StatusOK, metrics)
}
