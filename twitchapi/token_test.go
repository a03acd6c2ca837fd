package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func writeToken(w http.ResponseWriter, token string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": token,
		"expires_in":   expiresIn,
		"token_type":   "bearer",
	})
}

func TestFetchAppToken_SendsClientCredentialsForm(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/oauth2/token" {
			t.Errorf("path = %s, want /oauth2/token", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("client_id"); got != "test-client" {
			t.Errorf("client_id = %q", got)
		}
		if got := r.PostForm.Get("client_secret"); got != "test-secret" {
			t.Errorf("client_secret = %q", got)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		writeToken(w, "app-token", 3600)
	})

	tok, err := FetchAppToken(context.Background(), server.Client(), server.URL+"/oauth2/token", "test-client", "test-secret")
	if err != nil {
		t.Fatalf("FetchAppToken() error = %v", err)
	}
	if tok.AccessToken != "app-token" {
		t.Errorf("AccessToken = %q, want app-token", tok.AccessToken)
	}
	if time.Until(tok.Expiry) < 59*time.Minute {
		t.Errorf("Expiry = %v, want about one hour from now", tok.Expiry)
	}
}

func TestFetchAppToken_ServerErrorIsAuthError(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":400,"message":"invalid client secret"}`))
	})

	_, err := FetchAppToken(context.Background(), server.Client(), server.URL, "bad-client", "bad-secret")
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v (%T), want *AuthError", err, err)
	}
	if ae.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", ae.StatusCode)
	}
}

func TestFetchAppToken_TransportErrorIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := FetchAppToken(context.Background(), nil, url, "c", "s")
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *AuthError", err)
	}
	if ae.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for transport failure", ae.StatusCode)
	}
}

func TestTokenSource_GetCached(t *testing.T) {
	var calls atomic.Int32
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeToken(w, "test-token-123", 3600)
	})

	ts := &TokenSource{ClientID: "test-client", ClientSecret: "test-secret", TokenURL: server.URL}
	ctx := context.Background()

	token1, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if token1 != "test-token-123" {
		t.Errorf("Get() = %s, want test-token-123", token1)
	}

	token2, err := ts.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if token2 != token1 {
		t.Errorf("cached token = %s, want %s", token2, token1)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 API call, got %d", calls.Load())
	}
}

func TestTokenSource_RefreshesInsideExpiryBuffer(t *testing.T) {
	var calls atomic.Int32
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		token := "test-token-1"
		if n > 1 {
			token = "test-token-2"
		}
		// Shorter than the 60s buffer: never served from cache.
		writeToken(w, token, 30)
	})

	ts := &TokenSource{ClientID: "test-client", ClientSecret: "test-secret", TokenURL: server.URL}
	ctx := context.Background()

	if tok, err := ts.Get(ctx); err != nil || tok != "test-token-1" {
		t.Fatalf("first Get() = %q, %v", tok, err)
	}
	if tok, err := ts.Get(ctx); err != nil || tok != "test-token-2" {
		t.Fatalf("second Get() = %q, %v; want refreshed token", tok, err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 API calls, got %d", calls.Load())
	}
}

func TestTokenSource_InvalidateForcesRefresh(t *testing.T) {
	var calls atomic.Int32
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeToken(w, "fresh", 3600)
	})

	ts := &TokenSource{ClientID: "c", ClientSecret: "s", TokenURL: server.URL}
	ts.SetToken("stale", time.Now().Add(time.Hour))

	if tok, _ := ts.Get(context.Background()); tok != "stale" {
		t.Fatalf("Get() = %q, want seeded token", tok)
	}
	ts.Invalidate()
	if tok, err := ts.Get(context.Background()); err != nil || tok != "fresh" {
		t.Fatalf("Get() after Invalidate = %q, %v", tok, err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 API call, got %d", calls.Load())
	}
}

func TestTokenSource_ZeroExpiresInDefaultsToOneHour(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "no-expiry", 0)
	})

	ts := &TokenSource{ClientID: "c", ClientSecret: "s", TokenURL: server.URL}
	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if d := time.Until(ts.expiresAt); d < 59*time.Minute || d > 61*time.Minute {
		t.Errorf("expiresAt in %v, want ~60m", d)
	}
}

func TestTokenSource_GetMissingCredentials(t *testing.T) {
	ts := &TokenSource{}

	_, err := ts.Get(context.Background())
	if err == nil {
		t.Fatal("Get() with missing credentials should return error")
	}
	if !strings.Contains(err.Error(), "missing client id/secret") {
		t.Errorf("Get() error = %v, want error about missing credentials", err)
	}
}

func TestTokenSource_GetEmptyToken(t *testing.T) {
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "", 3600)
	})

	ts := &TokenSource{ClientID: "test-client", ClientSecret: "test-secret", TokenURL: server.URL}

	_, err := ts.Get(context.Background())
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("Get() error = %v, want *AuthError", err)
	}
	if !strings.Contains(err.Error(), "access_token") {
		t.Errorf("Get() error = %v, want mention of access_token", err)
	}
}

func TestTokenSource_ConcurrentAccess(t *testing.T) {
	var calls atomic.Int32
	server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		writeToken(w, "test-token", 3600)
	})

	ts := &TokenSource{ClientID: "test-client", ClientSecret: "test-secret", TokenURL: server.URL}
	ctx := context.Background()

	results := make(chan string, 5)
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			token, err := ts.Get(ctx)
			if err != nil {
				errs <- err
				return
			}
			results <- token
		}()
	}

	for i := 0; i < 5; i++ {
		select {
		case err := <-errs:
			t.Errorf("Get() error = %v", err)
		case token := <-results:
			if token != "test-token" {
				t.Errorf("Get() = %s, want test-token", token)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for concurrent Gets")
		}
	}

	// refresh re-checks under the write lock, so only one exchange happens.
	if calls.Load() != 1 {
		t.Errorf("expected 1 API call with concurrent access, got %d", calls.Load())
	}
}
