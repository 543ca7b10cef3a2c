package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/dbn-live/internal/connection"
	"github.com/rickgao/dbn-live/internal/health"
	"github.com/rickgao/dbn-live/internal/version"
)

// handler serves metrics, health and debug endpoints.
func (r *recorder) handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(r.cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		status := struct {
			Status     string            `json:"status"`
			Instance   string            `json:"instance_id"`
			Build      version.BuildInfo `json:"build"`
			Components map[string]any    `json:"components"`
		}{
			Status:     "healthy",
			Instance:   r.cfg.Instance.ID,
			Build:      version.Info(),
			Components: make(map[string]any),
		}

		if err := r.pools.Ping(ctx); err != nil {
			status.Status = "unhealthy"
			status.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			status.Components["timescaledb"] = "connected"
		}

		if r.redis != nil {
			if err := r.redis.Ping(ctx).Err(); err != nil {
				status.Status = degrade(status.Status)
				status.Components["redis"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				status.Components["redis"] = "connected"
			}
		}

		h := r.client.Health()
		state := r.client.State()
		status.Components["stream"] = map[string]any{
			"state":      state.String(),
			"session_id": r.client.SessionID(),
			"health":     h,
			"queue":      r.client.QueueStats(),
		}
		switch {
		case state == connection.Stopped, state == connection.Disposed, state == connection.Disconnected:
			status.Status = "unhealthy"
		case state == connection.Reconnecting, h.State != health.Healthy:
			status.Status = degrade(status.Status)
		}

		w.Header().Set("Content-Type", "application/json")
		if status.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("/debug/subscriptions", func(w http.ResponseWriter, req *http.Request) {
		subs := r.client.Subscriptions()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":         len(subs),
			"subscriptions": subs,
		})
	})

	mux.HandleFunc("/debug/instruments", func(w http.ResponseWriter, req *http.Request) {
		instruments := r.router.Symbology().Instruments()

		// Limit to first 100 for debugging
		total := len(instruments)
		if total > 100 {
			instruments = instruments[:100]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":       total,
			"showing":     len(instruments),
			"instruments": instruments,
		})
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, req *http.Request) {
		writers := make(map[string]any, len(r.writers))
		for _, wr := range r.writers {
			writers[wr.Name()] = wr.Stats()
		}
		out := map[string]any{
			"router":  r.router.Stats(),
			"writers": writers,
		}
		if r.cache != nil {
			out["cache"] = r.cache.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	return mux
}

func degrade(status string) string {
	if status == "healthy" {
		return "degraded"
	}
	return status
}
