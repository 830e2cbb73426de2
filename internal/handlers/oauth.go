package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	logpkg "github.com/benvon/product-studio/internal/logger"
	"github.com/benvon/product-studio/internal/services/oauth"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// OAuthHandler runs the authorization-code flow for the text upstream.
type OAuthHandler struct {
	client      *oauth.Client
	cookies     oauth.Cookies
	frontendURL string
	logger      *zap.Logger
	now         func() time.Time
}

// NewOAuthHandler creates an OAuth handler. frontendURL may list several origins; the
// first one receives the post-login redirect.
func NewOAuthHandler(client *oauth.Client, cookies oauth.Cookies, frontendURL string, logger *zap.Logger) *OAuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	first, _, _ := strings.Cut(frontendURL, ",")
	return &OAuthHandler{
		client:      client,
		cookies:     cookies,
		frontendURL: strings.TrimRight(strings.TrimSpace(first), "/"),
		logger:      logger,
		now:         time.Now,
	}
}

// RegisterRoutes registers routes under r (expected prefix /auth/openai).
func (h *OAuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/login", allowMethod(http.MethodGet, h.Login))
	r.HandleFunc("/callback", allowMethod(http.MethodGet, h.Callback))
	r.HandleFunc("/refresh", allowMethod(http.MethodPost, h.Refresh))
}

// Login redirects to the authorization endpoint with a fresh state cookie.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.client.Configured() {
		respondJSONError(w, http.StatusServiceUnavailable, "OAUTH_NOT_CONFIGURED", "OpenAI sign-in is not configured")
		return
	}
	state, err := oauth.NewState()
	if err != nil {
		logpkg.FromContext(r.Context(), h.logger).Error("oauth_state_generation_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not start sign-in")
		return
	}
	h.cookies.SetState(w, state)
	http.Redirect(w, r, h.client.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the flow and stores the tokens in cookies.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	log := logpkg.FromContext(r.Context(), h.logger)

	if e := q.Get("error"); e != "" {
		log.Warn("oauth_provider_error", zap.String("error", logpkg.SanitizeString(e, 200)))
		h.redirect(w, r, "error", "oauth_error")
		return
	}

	stateCookie, err := r.Cookie(oauth.StateCookie)
	h.cookies.ClearState(w)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != q.Get("state") {
		h.redirect(w, r, "error", "invalid_state")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirect(w, r, "error", "no_code")
		return
	}

	tok, err := h.client.ExchangeCode(r.Context(), code)
	if err != nil {
		log.Warn("oauth_token_exchange_failed", zap.String("error", logpkg.SanitizeError(err)))
		h.redirect(w, r, "error", "token_exchange_failed")
		return
	}

	h.cookies.SetTokens(w, tok, h.now())
	log.Info("oauth_connected")
	h.redirect(w, r, "success", "oauth_connected")
}

// Refresh exchanges the refresh-token cookie for a new access token.
func (h *OAuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(oauth.RefreshTokenCookie)
	if err != nil || c.Value == "" {
		respondJSONError(w, http.StatusUnauthorized, "NO_REFRESH_TOKEN", "No refresh token available")
		return
	}
	tok, err := h.client.Refresh(r.Context(), c.Value)
	if err != nil {
		logpkg.FromContext(r.Context(), h.logger).Warn("oauth_refresh_failed", zap.String("error", logpkg.SanitizeError(err)))
		respondJSONError(w, http.StatusUnauthorized, "REFRESH_FAILED", "Failed to refresh token")
		return
	}
	h.cookies.SetTokens(w, tok, h.now())
	respondJSON(w, http.StatusOK, map[string]bool{"refreshed": true})
}

func (h *OAuthHandler) redirect(w http.ResponseWriter, r *http.Request, key, value string) {
	http.Redirect(w, r, h.frontendURL+"/?"+url.Values{key: {value}}.Encode(), http.StatusFound)
}
