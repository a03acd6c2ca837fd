// Package telemetry provides Prometheus metrics, tracing helpers and correlation-id aware logging.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tick outcomes used as the "result" label of TicksTotal.
const (
	TickOK                     = "ok"
	TickFetchFailed            = "fetch_failed"
	TickResolveFailed          = "resolve_failed"
	TickDestinationUnavailable = "destination_unavailable"
	TickCancelled              = "cancelled"
	TickPanicked               = "panic"
)

var (
	once sync.Once

	// Counters
	TicksTotal           *prometheus.CounterVec
	StatusFetchFailures  prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationsFailed  prometheus.Counter
	NotificationsLogFail prometheus.Counter

	// Histograms (seconds)
	TickDuration prometheus.Observer

	// Gauges
	LiveChannelsGauge     prometheus.Gauge
	NotifiedChannelsGauge prometheus.Gauge
	WatchedChannelsGauge  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "notifier_ticks_total", Help: "Number of polling ticks by result"}, []string{"result"})
		StatusFetchFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "notifier_status_fetch_failures_total", Help: "Number of failed Twitch live-status fetches"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "notifier_notifications_sent_total", Help: "Number of go-live notifications delivered"})
		NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "notifier_notifications_failed_total", Help: "Number of go-live notifications that could not be delivered"})
		NotificationsLogFail = promauto.NewCounter(prometheus.CounterOpts{Name: "notifier_notification_log_failures_total", Help: "Number of notification log writes that failed"})
		TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "notifier_tick_duration_seconds", Help: "Polling tick duration seconds", Buckets: prometheus.DefBuckets})
		LiveChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "notifier_live_channels", Help: "Watched channels live at the last successful tick"})
		NotifiedChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "notifier_notified_channels", Help: "Channels already announced for their current live session"})
		WatchedChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "notifier_watched_channels", Help: "Size of the configured watchlist"})
	})
}

// RecordTick counts a tick outcome and its duration. No-op before Init.
func RecordTick(result string, d time.Duration) {
	if TicksTotal != nil {
		TicksTotal.WithLabelValues(result).Inc()
	}
	if TickDuration != nil {
		TickDuration.Observe(d.Seconds())
	}
	if result == TickFetchFailed && StatusFetchFailures != nil {
		StatusFetchFailures.Inc()
	}
}

// RecordNotification counts a delivery attempt.
func RecordNotification(delivered bool) {
	if delivered {
		if NotificationsSent != nil {
			NotificationsSent.Inc()
		}
		return
	}
	if NotificationsFailed != nil {
		NotificationsFailed.Inc()
	}
}

// RecordNotificationLogFailure counts a failed notification log write.
func RecordNotificationLogFailure() {
	if NotificationsLogFail != nil {
		NotificationsLogFail.Inc()
	}
}

// SetChannelCounts records the live/notified set sizes after a tick.
func SetChannelCounts(live, notified int) {
	if LiveChannelsGauge != nil {
		LiveChannelsGauge.Set(float64(live))
	}
	if NotifiedChannelsGauge != nil {
		NotifiedChannelsGauge.Set(float64(notified))
	}
}

// SetWatched records the watchlist size.
func SetWatched(n int) {
	if WatchedChannelsGauge != nil {
		WatchedChannelsGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns base (or the default logger) with a corr attribute if present.
func LoggerWithCorr(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := GetCorrelation(ctx); id != "" {
		return base.With(slog.String("corr", id))
	}
	return base
}
