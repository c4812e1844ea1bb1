package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spotipi/spotipi/internal/shared"
)

const stateCookie = "spotipi_oauth_state"

// handleLogin starts the authorization-code flow. A random state value is
// stored in a short-lived cookie and must round-trip through the vendor.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || !s.Config().Credentials.Spotify.Complete() {
		s.renderError(w, http.StatusServiceUnavailable,
			fmt.Errorf("%w: credentials not configured", shared.ErrMissingCredentials))
		return
	}

	state := shared.GenerateID()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, s.auth.AuthURL(state), http.StatusSeeOther)
}

// handleCallback completes the flow: verifies the state, exchanges the
// code for a token pair and opens a session.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || !s.Config().Credentials.Spotify.Complete() {
		s.renderError(w, http.StatusServiceUnavailable,
			fmt.Errorf("%w: credentials not configured", shared.ErrMissingCredentials))
		return
	}

	if vendorErr := r.URL.Query().Get("error"); vendorErr != "" {
		s.renderError(w, http.StatusForbidden,
			fmt.Errorf("%w: authorization denied: %s", shared.ErrNotAuthenticated, vendorErr))
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		s.renderError(w, http.StatusForbidden,
			fmt.Errorf("%w: state mismatch", shared.ErrInvalidState))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		s.renderError(w, http.StatusBadRequest,
			fmt.Errorf("%w: missing authorization code", shared.ErrInvalidInput))
		return
	}

	token, err := s.auth.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error("code exchange failed", "error", err)
		s.renderError(w, http.StatusBadGateway,
			fmt.Errorf("%w: code exchange failed", shared.ErrNotAuthenticated))
		return
	}

	if _, err := s.startSession(w, r, token); err != nil {
		s.logger.Error("failed to start session", "error", err)
		s.renderError(w, http.StatusInternalServerError, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout ends the session and returns to the login page.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.endSession(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleToken returns the session's current access token for the
// in-browser playback SDK. The token is refreshed first when it is
// about to expire, so the SDK never receives a stale one.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession(r)
	if err != nil {
		s.renderJSONError(w, http.StatusUnauthorized, shared.ErrNotAuthenticated)
		return
	}

	player, err := s.sessionPlayer(session)
	if err != nil {
		s.renderJSONError(w, http.StatusInternalServerError, err)
		return
	}

	token, err := player.CurrentToken(r.Context())
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) || errors.Is(err, shared.ErrRefreshFailed) {
			s.renderJSONError(w, http.StatusUnauthorized, err)
			return
		}
		s.renderJSONError(w, http.StatusBadGateway, err)
		return
	}

	s.renderJSON(w, http.StatusOK, map[string]any{
		"access_token": token.AccessToken,
		"expires_at":   token.Expiry.UTC(),
	})
}
