package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/live-notifier/twitchapi"
)

// LiveSet maps a lower-cased login to its current stream. It is rebuilt every tick.
type LiveSet map[string]twitchapi.Stream

// StatusFetcher reports which of the given logins are live right now.
//
// On failure implementations return an empty, non-nil LiveSet together with the error.
type StatusFetcher interface {
	FetchLiveStatus(ctx context.Context, watchlist []string) (LiveSet, error)
}

// StreamsGetter is the subset of twitchapi.HelixClient used by HelixFetcher.
type StreamsGetter interface {
	GetStreams(ctx context.Context, logins ...string) ([]twitchapi.Stream, error)
}

// HelixFetcher is the StatusFetcher backed by the Helix streams endpoint.
type HelixFetcher struct {
	Streams StreamsGetter
	Logger  *slog.Logger
}

// FetchLiveStatus implements StatusFetcher.
func (f *HelixFetcher) FetchLiveStatus(ctx context.Context, watchlist []string) (LiveSet, error) {
	live := LiveSet{}
	if len(watchlist) == 0 {
		return live, nil
	}
	streams, err := f.Streams.GetStreams(ctx, watchlist...)
	if err != nil {
		if twitchapi.IsUnauthorized(err) {
			f.logger().Warn("twitch rejected the app token; a new one is requested next tick")
		}
		return LiveSet{}, fmt.Errorf("fetch live status: %w", err)
	}
	for _, s := range streams {
		login := strings.ToLower(s.UserLogin)
		if login == "" {
			continue
		}
		live[login] = s
	}
	f.logger().Info("live status fetched",
		slog.Int("watched", len(watchlist)),
		slog.Int("live", len(live)))
	return live, nil
}

func (f *HelixFetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
