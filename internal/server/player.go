package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spotipi/spotipi/internal/models"
	"github.com/spotipi/spotipi/internal/services"
	"github.com/spotipi/spotipi/internal/shared"
)

// handleIndex renders the player page, or the login page when there is
// no session yet.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	session, err := s.currentSession(r)
	if err != nil {
		s.renderPage(w, http.StatusOK, "login.html", nil)
		return
	}

	player, err := s.sessionPlayer(session)
	if err != nil {
		s.renderError(w, http.StatusInternalServerError, err)
		return
	}

	state, err := player.CurrentPlayback(r.Context())
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			s.endSession(w, r)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		s.logger.Warn("playback lookup failed", "error", err)
		s.renderError(w, http.StatusBadGateway, err)
		return
	}

	s.syncDevice(session, state)

	s.renderPage(w, http.StatusOK, "player.html", map[string]any{
		"State":   state,
		"Playing": state != nil && state.IsPlaying,
	})
}

// handleStatus returns the playback state as JSON for the polling
// front end. No active playback is a normal answer, not an error.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	player, session, ok := s.jsonPlayer(w, r)
	if !ok {
		return
	}

	state, err := player.CurrentPlayback(r.Context())
	if err != nil {
		s.playerJSONError(w, err)
		return
	}

	s.syncDevice(session, state)

	if state == nil {
		s.renderJSON(w, http.StatusOK, map[string]any{
			"is_playing": false,
			"track":      nil,
		})
		return
	}

	s.renderJSON(w, http.StatusOK, state)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, func(player Player, deviceID string) error {
		return player.Play(r.Context(), deviceID)
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, func(player Player, deviceID string) error {
		return player.Pause(r.Context(), deviceID)
	})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, func(player Player, deviceID string) error {
		return player.Next(r.Context(), deviceID)
	})
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, func(player Player, deviceID string) error {
		return player.Previous(r.Context(), deviceID)
	})
}

// control runs one transport action against the session's chosen device
// and bounces back to the player page.
func (s *Server) control(w http.ResponseWriter, r *http.Request, action func(Player, string) error) {
	session, err := s.currentSession(r)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	player, err := s.sessionPlayer(session)
	if err != nil {
		s.renderError(w, http.StatusInternalServerError, err)
		return
	}

	if err := action(player, session.DeviceID()); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotAuthenticated):
			s.endSession(w, r)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		case errors.Is(err, shared.ErrNoActiveDevice):
			// Device may have gone away; drop the stale choice and let
			// the next status poll pick up whatever becomes active.
			if session.DeviceID() != "" {
				session.SetDevice("", false)
				if err := s.sessions.UpdateDevice(session.ID(), "", false); err != nil {
					s.logger.Warn("failed to clear session device", "error", err)
				}
			}
			s.renderError(w, http.StatusConflict, err)
			return
		default:
			s.logger.Error("playback control failed", "error", err)
			s.renderError(w, http.StatusBadGateway, err)
			return
		}
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleSearch returns track matches as JSON.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	player, _, ok := s.jsonPlayer(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		s.renderJSONError(w, http.StatusBadRequest,
			fmt.Errorf("%w: missing query", shared.ErrInvalidInput))
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.renderJSONError(w, http.StatusBadRequest,
				fmt.Errorf("%w: bad limit %q", shared.ErrInvalidInput, raw))
			return
		}
		limit = parsed
	}

	tracks, err := player.Search(r.Context(), query, limit)
	if err != nil {
		s.playerJSONError(w, err)
		return
	}

	s.renderJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

// handleQueue appends a track to the playback queue.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	player, session, ok := s.jsonPlayer(w, r)
	if !ok {
		return
	}

	trackID := r.FormValue("track_id")
	if trackID == "" {
		s.renderJSONError(w, http.StatusBadRequest,
			fmt.Errorf("%w: missing track_id", shared.ErrInvalidInput))
		return
	}

	if err := player.Enqueue(r.Context(), trackID, session.DeviceID()); err != nil {
		s.playerJSONError(w, err)
		return
	}

	s.renderJSON(w, http.StatusOK, map[string]any{"queued": trackID})
}

// handleDevices lists the account's playback devices as JSON.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	player, session, ok := s.jsonPlayer(w, r)
	if !ok {
		return
	}

	devices, err := player.Devices(r.Context())
	if err != nil {
		s.playerJSONError(w, err)
		return
	}

	s.renderJSON(w, http.StatusOK, map[string]any{
		"devices":  devices,
		"selected": session.DeviceID(),
	})
}

// handleTransfer moves playback to a chosen device and records that
// choice on the session as an explicit one.
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	player, session, ok := s.jsonPlayer(w, r)
	if !ok {
		return
	}

	deviceID := r.FormValue("device_id")
	if deviceID == "" {
		s.renderJSONError(w, http.StatusBadRequest,
			fmt.Errorf("%w: missing device_id", shared.ErrInvalidInput))
		return
	}

	if err := player.TransferPlayback(r.Context(), deviceID, true); err != nil {
		s.playerJSONError(w, err)
		return
	}

	session.SetDevice(deviceID, true)
	if err := s.sessions.UpdateDevice(session.ID(), deviceID, true); err != nil {
		s.logger.Warn("failed to persist device choice", "error", err)
	}

	s.renderJSON(w, http.StatusOK, map[string]any{"device_id": deviceID})
}

// jsonPlayer resolves the session and player for a JSON endpoint,
// answering 401 itself when there is no valid session.
func (s *Server) jsonPlayer(w http.ResponseWriter, r *http.Request) (Player, *models.Session, bool) {
	session, err := s.currentSession(r)
	if err != nil {
		s.renderJSONError(w, http.StatusUnauthorized, shared.ErrNotAuthenticated)
		return nil, nil, false
	}

	player, err := s.sessionPlayer(session)
	if err != nil {
		s.renderJSONError(w, http.StatusInternalServerError, err)
		return nil, nil, false
	}

	return player, session, true
}

// playerJSONError maps a playback error onto a JSON response.
func (s *Server) playerJSONError(w http.ResponseWriter, err error) {
	var apiErr *services.APIError
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated):
		s.renderJSONError(w, http.StatusUnauthorized, err)
	case errors.Is(err, shared.ErrNoActiveDevice):
		s.renderJSONError(w, http.StatusConflict, err)
	case errors.As(err, &apiErr):
		s.renderJSONError(w, http.StatusBadGateway,
			fmt.Errorf("upstream error %d: %s", apiErr.Status, apiErr.Message))
	default:
		s.renderJSONError(w, http.StatusBadGateway, err)
	}
}

// syncDevice auto-follows the vendor's active device unless the listener
// has picked one explicitly.
func (s *Server) syncDevice(session *models.Session, state *services.PlaybackState) {
	if session.ManualDevice() || state == nil || state.Device == nil || state.Device.ID == "" {
		return
	}
	if session.DeviceID() == state.Device.ID {
		return
	}

	session.SetDevice(state.Device.ID, false)
	if err := s.sessions.UpdateDevice(session.ID(), state.Device.ID, false); err != nil {
		s.logger.Warn("failed to sync session device", "error", err)
	}
}
