package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenURL is the Twitch OAuth token endpoint.
const TokenURL = "https://id.twitch.tv/oauth2/token"

// expiryBuffer is how long before expiry a cached token is considered stale.
const expiryBuffer = 60 * time.Second

// defaultTokenLifetime is assumed when the token response carries no expires_in.
const defaultTokenLifetime = 60 * time.Minute

// FetchAppToken exchanges client credentials for an app access token
// (POST client_id, client_secret, grant_type=client_credentials). Any failure is an *AuthError.
func FetchAppToken(ctx context.Context, hc *http.Client, tokenURL, clientID, clientSecret string) (*oauth2.Token, error) {
	if clientID == "" || clientSecret == "" {
		return nil, &AuthError{Err: errors.New("missing client id/secret for twitch app token")}
	}
	if tokenURL == "" {
		tokenURL = TokenURL
	}
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		ae := &AuthError{Err: err}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			ae.StatusCode = re.Response.StatusCode
		}
		return nil, ae
	}
	return tok, nil
}


// TokenSource fetches and caches a Twitch app access (client credentials) token.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	// TokenURL overrides the token endpoint; empty means TokenURL.
	TokenURL string

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.token != "" && time.Until(ts.expiresAt) > expiryBuffer {
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	return ts.refresh(ctx)
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Until(ts.expiresAt) > expiryBuffer {
		return ts.token, nil
	}
	tok, err := FetchAppToken(ctx, ts.HTTPClient, ts.TokenURL, ts.ClientID, ts.ClientSecret)
	if err != nil {
		return "", err
	}
	ts.token = tok.AccessToken
	if tok.Expiry.IsZero() {
		ts.expiresAt = time.Now().Add(defaultTokenLifetime)
	} else {
		ts.expiresAt = tok.Expiry
	}
	return ts.token, nil
}

// Invalidate drops the cached token so the next Get performs a fresh exchange.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	ts.token = ""
	ts.expiresAt = time.Time{}
	ts.mu.Unlock()
}

// SetToken seeds the cache, e.g. with a token obtained out of band.
func (ts *TokenSource) SetToken(token string, expiresAt time.Time) {
	ts.mu.Lock()
	ts.token = token
	ts.expiresAt = expiresAt
	ts.mu.Unlock()
}
