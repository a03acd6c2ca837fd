package twitchapi

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError reports a failed client-credentials exchange. StatusCode is zero when the
// request never produced an HTTP response.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("twitch token request failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("twitch token request failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPError is returned for non-2xx Helix responses.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("helix %s: %d %s: %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// IsUnauthorized reports whether err is a Helix 401, i.e. the app token was rejected.
func IsUnauthorized(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == http.StatusUnauthorized
}
