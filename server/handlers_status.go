package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/live-notifier/notify"
	"github.com/onnwee/live-notifier/telemetry"
	"github.com/onnwee/live-notifier/version"
)

type statusResponse struct {
	notify.Status
	DiscordConnected bool                  `json:"discord_connected"`
	TracingEnabled   bool                  `json:"tracing_enabled"`
	Version          version.Info          `json:"version"`
	Recent           []notify.Notification `json:"recent,omitempty"`
	RecentError      string                `json:"recent_error,omitempty"`
}

// HandleStatus returns the loop snapshot, build info and the latest logged notifications.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{
		Status:           h.loop.Status(),
		DiscordConnected: h.chat.Connected(),
		TracingEnabled:   telemetry.IsTracingEnabled(),
		Version:          version.Get(),
	}
	if h.history != nil {
		recent, err := h.history.Recent(r.Context(), recentLimit)
		if err != nil {
			telemetry.LoggerWithCorr(r.Context(), nil).Warn("status: recent notifications", slog.Any("err", err))
			resp.RecentError = err.Error()
		} else {
			resp.Recent = recent
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
