package http

import (
	"fmt"
	"net/http"
	"time"

	"sitecost/internal/services"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady always answers 200 once the server is up: the ledger works
// offline. The checks report whether drive sync is available.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	st := s.ledger.Status()
	drive := "disconnected"
	switch {
	case !st.Ready:
		drive = "not_configured"
	case st.Connected:
		drive = "connected"
	}
	NewJSONResponse().Body(map[string]any{
		"status":    "ready",
		"timestamp": time.Now().Format(time.RFC3339),
		"checks": map[string]any{
			"drive":            drive,
			"receipt_cache":    s.receipts.Size(),
			"rate_limiter":     s.limiter.ActiveClients(),
			"sync_subscribers": s.hub.Clients(),
		},
	}).Write(w)
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	st := s.ledger.Status()
	metric := func(name, kind, help string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n", name, help, name, kind, name, v)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", s.tracer.Total())
	metric("suspicious_requests_total", "counter", "Requests rejected as probes", s.detector.Rejected())
	metric("active_rate_limit_clients", "gauge", "Clients tracked by the rate limiter", s.limiter.ActiveClients())
	metric("receipt_cache_entries", "gauge", "Resolved receipt URIs cached", s.receipts.Size())
	metric("sync_subscribers", "gauge", "Open sync status websockets", s.hub.Clients())
	metric("transactions", "gauge", "Transactions in the local state", len(s.ledger.Snapshot().Transactions))
	metric("drive_connected", "gauge", "1 when a drive token is active", boolGauge(st.Connected))
	metric("uptime_seconds", "gauge", "Process uptime in seconds", int64(time.Since(s.started).Seconds()))
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Server) handleSyncStream(w http.ResponseWriter, r *http.Request) {
	initial := services.Event{Type: services.EventStatus, Status: s.ledger.Status()}
	s.hub.ServeWS(w, r, &initial)
}
