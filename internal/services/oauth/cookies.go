package oauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	StateCookie        = "oauth_state"
	AccessTokenCookie  = "openai_access_token"
	RefreshTokenCookie = "openai_refresh_token"

	defaultAccessMaxAge = 3600
	refreshMaxAge       = 30 * 24 * 60 * 60
	stateMaxAge         = 10 * 60
)

// ErrNoCredential means the request carries neither an access nor a refresh token.
var ErrNoCredential = errors.New("no oauth credential available")

// CredentialSource supplies a usable bearer token for the text upstream.
type CredentialSource interface {
	ValidCredential(ctx context.Context) (string, error)
}

// Cookies writes token cookies.
type Cookies struct {
	Secure bool
}

func (c Cookies) set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetState stores the login state value.
func (c Cookies) SetState(w http.ResponseWriter, state string) {
	c.set(w, StateCookie, state, stateMaxAge)
}

// ClearState removes the login state cookie.
func (c Cookies) ClearState(w http.ResponseWriter) {
	c.set(w, StateCookie, "", -1)
}

// SetTokens stores the access token, and the refresh token when one was issued.
func (c Cookies) SetTokens(w http.ResponseWriter, tok *oauth2.Token, now time.Time) {
	maxAge := defaultAccessMaxAge
	if !tok.Expiry.IsZero() {
		if secs := int(tok.Expiry.Sub(now).Seconds()); secs > 0 {
			maxAge = secs
		}
	}
	c.set(w, AccessTokenCookie, tok.AccessToken, maxAge)
	if tok.RefreshToken != "" {
		c.set(w, RefreshTokenCookie, tok.RefreshToken, refreshMaxAge)
	}
}

// RequestCredentials resolves a token from request cookies, refreshing it when only the
// refresh token is left. Refreshed tokens are written back to the response.
type RequestCredentials struct {
	client  *Client
	cookies Cookies
	r       *http.Request
	w       http.ResponseWriter
}

// FromRequest builds a per-request credential source.
func FromRequest(client *Client, cookies Cookies, w http.ResponseWriter, r *http.Request) *RequestCredentials {
	return &RequestCredentials{client: client, cookies: cookies, r: r, w: w}
}

// ValidCredential implements CredentialSource.
func (rc *RequestCredentials) ValidCredential(ctx context.Context) (string, error) {
	if c, err := rc.r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	c, err := rc.r.Cookie(RefreshTokenCookie)
	if err != nil || c.Value == "" {
		return "", ErrNoCredential
	}
	if !rc.client.Configured() {
		return "", ErrNoCredential
	}
	tok, err := rc.client.Refresh(ctx, c.Value)
	if err != nil {
		return "", err
	}
	rc.cookies.SetTokens(rc.w, tok, time.Now())
	return tok.AccessToken, nil
}
