package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spotipi/spotipi/internal/models"
	"github.com/spotipi/spotipi/internal/shared"
	"golang.org/x/oauth2"
)

const (
	sessionCookie = "spotipi_session"
	sessionTTL    = 30 * 24 * time.Hour
)

// signSessionID produces the cookie value "<id>.<signature>" where the
// signature is an HMAC-SHA256 over the id keyed with the app secret.
func (s *Server) signSessionID(id string) string {
	mac := hmac.New(sha256.New, []byte(s.Config().App.SecretKey))
	mac.Write([]byte(id))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return id + "." + sig
}

// verifySessionID checks a cookie value and returns the embedded session
// id when the signature is valid.
func (s *Server) verifySessionID(value string) (string, error) {
	id, _, found := strings.Cut(value, ".")
	if !found || id == "" {
		return "", fmt.Errorf("%w: malformed session cookie", shared.ErrSessionNotFound)
	}
	if !hmac.Equal([]byte(s.signSessionID(id)), []byte(value)) {
		return "", fmt.Errorf("%w: bad session signature", shared.ErrSessionNotFound)
	}
	return id, nil
}

// currentSession resolves the request's session cookie to a stored
// session. Expired and tampered cookies are reported as
// [shared.ErrSessionNotFound].
func (s *Server) currentSession(r *http.Request) (*models.Session, error) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, fmt.Errorf("%w: no session cookie", shared.ErrSessionNotFound)
	}

	id, err := s.verifySessionID(cookie.Value)
	if err != nil {
		return nil, err
	}

	return s.sessions.Get(id)
}

// startSession stores a new session for a freshly exchanged token and
// sets the signed cookie.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, token *oauth2.Token) (*models.Session, error) {
	session := models.NewSession(sessionTTL)
	if err := session.SetToken(token); err != nil {
		return nil, err
	}

	if err := s.sessions.Create(session); err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.signSessionID(session.ID()),
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return session, nil
}

// endSession deletes the stored session, if any, and clears the cookie.
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if id, err := s.verifySessionID(cookie.Value); err == nil {
			if err := s.sessions.Delete(id); err != nil && !errors.Is(err, shared.ErrSessionNotFound) {
				s.logger.Warn("failed to delete session", "error", err)
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionPlayer builds a Player for the request's session. Token
// refreshes are written back to the session row so the next request
// starts from the newest token.
func (s *Server) sessionPlayer(session *models.Session) (Player, error) {
	token, err := session.Token()
	if err != nil {
		return nil, err
	}

	id := session.ID()
	persist := func(refreshed *oauth2.Token) {
		encoded, err := json.Marshal(refreshed)
		if err != nil {
			s.logger.Warn("failed to encode refreshed token", "session", id, "error", err)
			return
		}
		if err := s.sessions.UpdateToken(id, string(encoded)); err != nil {
			s.logger.Warn("failed to persist refreshed token", "session", id, "error", err)
		}
	}

	player := s.players(token, persist)
	if player == nil {
		return nil, fmt.Errorf("%w: player client unavailable", shared.ErrServiceUnavailable)
	}
	return player, nil
}
