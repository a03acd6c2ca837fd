package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/live-notifier/telemetry"
)

// DefaultInterval is the polling interval used when Config.Interval is unset.
const DefaultInterval = 60 * time.Second

var (
	// ErrDestinationNotFound is wrapped by Destinations implementations when the
	// id does not name a reachable channel. Other Resolve errors are treated as transient.
	ErrDestinationNotFound = errors.New("notification destination not found")
	// ErrDestinationUnavailable is returned when the configured chat destination
	// does not exist or is not accessible. It stops Run.
	ErrDestinationUnavailable = errors.New("notification destination unavailable")
)

// Destination is a resolved chat channel that accepts text messages.
type Destination interface {
	// Send posts content and returns the platform message id.
	Send(ctx context.Context, content string) (string, error)
}

// Destinations resolves a destination id to a sendable channel. Resolve wraps
// ErrDestinationNotFound when the id names no reachable channel.
type Destinations interface {
	Resolve(ctx context.Context, id string) (Destination, error)
}

// Notification describes one delivered go-live message.
type Notification struct {
	Login       string    `json:"login"`
	DisplayName string    `json:"display_name"`
	Title       string    `json:"title"`
	StartedAt   time.Time `json:"started_at"`
	MessageID   string    `json:"message_id"`
	SentAt      time.Time `json:"sent_at"`
}

// Recorder persists delivered notifications. Failures are logged and otherwise ignored.
type Recorder interface {
	RecordNotification(ctx context.Context, n Notification) error
}

// Config holds the loop's tunables. Zero values select defaults.
type Config struct {
	Watchlist     []string
	DestinationID string
	Interval      time.Duration
	Clock         clockwork.Clock
	Logger        *slog.Logger
	Recorder      Recorder
}

// TickResult summarises one tick.
type TickResult struct {
	Skipped bool
	Live    int
	Sent    []string
	Failed  []string
}

// Status is a point-in-time view of the loop for the ops endpoints.
type Status struct {
	Watchlist  []string  `json:"watchlist"`
	Notified   []string  `json:"notified"`
	Ticks      int64     `json:"ticks"`
	LastTick   time.Time `json:"last_tick,omitempty"`
	LastResult string    `json:"last_result,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Loop owns the notified set and drives ticks.
//
// The notified set is written only from the goroutine calling Tick/Run; other
// goroutines read it through Notified and Status.
type Loop struct {
	watchlist     []string
	fetcher       StatusFetcher
	destinations  Destinations
	destinationID string
	interval      time.Duration
	clock         clockwork.Clock
	logger        *slog.Logger
	recorder      Recorder

	mu         sync.RWMutex
	notified   map[string]struct{}
	ticks      int64
	lastTick   time.Time
	lastResult string
	lastErr    string
}

// New builds a Loop. The watchlist is copied and lower-cased.
func New(fetcher StatusFetcher, destinations Destinations, cfg Config) *Loop {
	l := &Loop{
		fetcher:       fetcher,
		destinations:  destinations,
		destinationID: cfg.DestinationID,
		interval:      cfg.Interval,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		recorder:      cfg.Recorder,
		notified:      make(map[string]struct{}),
	}
	l.watchlist = make([]string, 0, len(cfg.Watchlist))
	for _, w := range cfg.Watchlist {
		l.watchlist = append(l.watchlist, strings.ToLower(w))
	}
	if l.interval <= 0 {
		l.interval = DefaultInterval
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	if l.logger == nil {
		l.logger = slog.Default().With(slog.String("component", "notify"))
	}
	return l
}

// Run ticks immediately and then once per interval until ctx is cancelled
// (returns nil) or the destination cannot be resolved.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("notification loop started",
		slog.Int("watched", len(l.watchlist)),
		slog.Duration("interval", l.interval))
	if len(l.watchlist) == 0 {
		l.logger.Warn("watchlist is empty; no notifications will be sent")
	}
	for {
		if ctx.Err() != nil {
			l.logger.Info("notification loop stopped")
			return nil
		}
		if _, err := l.Tick(ctx); errors.Is(err, ErrDestinationUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			l.logger.Info("notification loop stopped")
			return nil
		case <-l.clock.After(l.interval):
		}
	}
}

// Tick runs one poll: fetch live status, announce newly live channels and
// prune channels that are no longer live. A failed fetch or a transient
// Resolve error skips the tick and leaves the notified set untouched; only a
// destination that is not found yields ErrDestinationUnavailable. Panics are
// recovered and reported as errors.
func (l *Loop) Tick(ctx context.Context) (res TickResult, err error) {
	start := l.clock.Now()
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	log := telemetry.LoggerWithCorr(ctx, l.logger)
	ctx, span := telemetry.StartSpan(ctx, "notify", "loop.Tick", attribute.Int("notify.watched", len(l.watchlist)))
	defer span.End()

	outcome := telemetry.TickOK
	defer func() {
		if r := recover(); r != nil {
			log.Error("tick panicked", slog.Any("panic", r))
			outcome = telemetry.TickPanicked
			err = fmt.Errorf("tick panicked: %v", r)
		}
		telemetry.RecordTick(outcome, l.clock.Since(start))
		l.finishTick(start, outcome, err)
		if err != nil {
			telemetry.RecordError(span, err)
			return
		}
		span.SetAttributes(attribute.Int("notify.sent", len(res.Sent)))
		telemetry.SetSpanSuccess(span)
	}()

	live, err := l.fetcher.FetchLiveStatus(ctx, l.watchlist)
	if err != nil {
		res.Skipped = true
		if ctx.Err() != nil {
			outcome = telemetry.TickCancelled
			return res, ctx.Err()
		}
		log.Warn("status fetch failed; skipping tick", slog.Any("err", err))
		outcome = telemetry.TickFetchFailed
		return res, err
	}
	res.Live = len(live)

	dest, err := l.destinations.Resolve(ctx, l.destinationID)
	if err != nil {
		res.Skipped = true
		switch {
		case ctx.Err() != nil:
			outcome = telemetry.TickCancelled
			return res, ctx.Err()
		case errors.Is(err, ErrDestinationNotFound):
			log.Error("notification destination unavailable",
				slog.String("destination", l.destinationID),
				slog.Any("err", err))
			outcome = telemetry.TickDestinationUnavailable
			return res, fmt.Errorf("%w: %s: %w", ErrDestinationUnavailable, l.destinationID, err)
		default:
			log.Warn("resolve destination failed; skipping tick",
				slog.String("destination", l.destinationID),
				slog.Any("err", err))
			outcome = telemetry.TickResolveFailed
			return res, err
		}
	}

	for _, login := range l.watchlist {
		stream, ok := live[login]
		if !ok {
			continue
		}
		if _, done := l.notified[login]; done {
			continue
		}
		msgID, sendErr := dest.Send(ctx, FormatMessage(login, stream))
		if sendErr != nil {
			log.Warn("send notification failed; will retry next tick",
				slog.String("login", login),
				slog.Any("err", sendErr))
			telemetry.RecordNotification(false)
			res.Failed = append(res.Failed, login)
			continue
		}
		l.mu.Lock()
		l.notified[login] = struct{}{}
		l.mu.Unlock()
		telemetry.RecordNotification(true)
		res.Sent = append(res.Sent, login)
		log.Info("notification sent",
			slog.String("login", login),
			slog.String("title", stream.Title),
			slog.String("message_id", msgID))
		l.record(ctx, log, Notification{
			Login:       login,
			DisplayName: stream.UserName,
			Title:       stream.Title,
			StartedAt:   stream.StartedAt,
			MessageID:   msgID,
			SentAt:      l.clock.Now(),
		})
	}

	l.mu.Lock()
	for login := range l.notified {
		if _, ok := live[login]; !ok {
			delete(l.notified, login)
		}
	}
	notified := len(l.notified)
	l.mu.Unlock()
	telemetry.SetChannelCounts(len(live), notified)
	return res, nil
}

func (l *Loop) record(ctx context.Context, log *slog.Logger, n Notification) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.RecordNotification(ctx, n); err != nil {
		telemetry.RecordNotificationLogFailure()
		log.Warn("record notification failed", slog.String("login", n.Login), slog.Any("err", err))
	}
}

func (l *Loop) finishTick(at time.Time, outcome string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks++
	l.lastTick = at
	l.lastResult = outcome
	l.lastErr = ""
	if err != nil {
		l.lastErr = err.Error()
	}
}

// Notified returns the logins announced for their current live session, sorted.
func (l *Loop) Notified() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.notified))
	for login := range l.notified {
		out = append(out, login)
	}
	sort.Strings(out)
	return out
}

// Status returns a snapshot of the loop state.
func (l *Loop) Status() Status {
	notified := l.Notified()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{
		Watchlist:  append([]string(nil), l.watchlist...),
		Notified:   notified,
		Ticks:      l.ticks,
		LastTick:   l.lastTick,
		LastResult: l.lastResult,
		LastError:  l.lastErr,
	}
}
