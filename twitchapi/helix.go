// Package twitchapi contains minimal helpers to interact with the Twitch Helix API
// using an app access token: live-status lookup for a batch of logins and login validation.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/live-notifier/telemetry"
)

// HelixBaseURL is the Helix API root.
const HelixBaseURL = "https://api.twitch.tv/helix"

// maxLoginsPerRequest is the Helix cap on repeated user_login parameters.
const maxLoginsPerRequest = 100

// Stream is a live stream as reported by /helix/streams.
type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameName     string    `json:"game_name"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	ThumbnailURL string    `json:"thumbnail_url"`
}

// User is the subset of /helix/users used for watchlist validation.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// HelixClient provides the Helix calls needed for live notifications.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	// BaseURL overrides HelixBaseURL.
	BaseURL string
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return HelixBaseURL
}

// GetStreams returns the live streams among logins. Logins are sent as repeated
// user_login parameters, in batches of at most 100 per request.
func (hc *HelixClient) GetStreams(ctx context.Context, logins ...string) ([]Stream, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "helix.GetStreams", attribute.Int("twitch.logins", len(logins)))
	defer span.End()

	out := make([]Stream, 0)
	for start := 0; start < len(logins); start += maxLoginsPerRequest {
		end := min(start+maxLoginsPerRequest, len(logins))
		var body struct {
			Data []Stream `json:"data"`
		}
		q := url.Values{"user_login": logins[start:end]}
		q.Set("first", strconv.Itoa(end-start))
		if err := hc.get(ctx, "/streams", q, &body); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		out = append(out, body.Data...)
	}
	span.SetAttributes(attribute.Int("twitch.live", len(out)))
	telemetry.SetSpanSuccess(span)
	return out, nil
}

// GetUsers resolves logins to users. Unknown logins are simply absent from the result.
func (hc *HelixClient) GetUsers(ctx context.Context, logins ...string) ([]User, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "helix.GetUsers", attribute.Int("twitch.logins", len(logins)))
	defer span.End()

	out := make([]User, 0, len(logins))
	for start := 0; start < len(logins); start += maxLoginsPerRequest {
		end := min(start+maxLoginsPerRequest, len(logins))
		var body struct {
			Data []User `json:"data"`
		}
		if err := hc.get(ctx, "/users", url.Values{"login": logins[start:end]}, &body); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		out = append(out, body.Data...)
	}
	return out, nil
}

// get performs one authenticated GET and decodes the JSON body into dst.
// A 401 invalidates the cached app token so the next call fetches a new one.
func (hc *HelixClient) get(ctx context.Context, path string, q url.Values, dst any) error {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+path, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := hc.http().Do(req)
	if err != nil {
		return fmt.Errorf("helix %s: %w", path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusUnauthorized {
			hc.AppTokenSource.Invalidate()
		}
		return &HTTPError{Endpoint: path, StatusCode: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("helix %s: decode: %w", path, err)
	}
	return nil
}
