package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://auth.openai.com/oauth/authorize"
	DefaultTokenURL = "https://auth.openai.com/oauth/token"
)

// ErrNotConfigured is returned when no client ID is set.
var ErrNotConfigured = errors.New("oauth client is not configured")

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	Scopes       []string
}

// Client wraps OAuth2 client functionality
type Client struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewClient creates a new OAuth2 client. Empty endpoint URLs use the OpenAI defaults.
func NewClient(cfg Config) *Client {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &Client{config: config}
}

// WithHTTPClient sets the client used for token requests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Configured reports whether a client ID is set.
func (c *Client) Configured() bool {
	return c != nil && c.config.ClientID != ""
}

func (c *Client) ctx(ctx context.Context) context.Context {
	if c.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	return ctx
}

// AuthCodeURL returns the authorization URL
func (c *Client) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	return c.config.Exchange(c.ctx(ctx), code)
}

// Refresh trades a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if refreshToken == "" {
		return nil, errors.New("refresh token is empty")
	}
	tok, err := c.config.TokenSource(c.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh: %w", err)
	}
	return tok, nil
}

// NewState returns a random URL-safe state value.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
