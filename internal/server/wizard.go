package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spotipi/spotipi/internal/shared"
	"github.com/spotipi/spotipi/internal/sysconf"
)

// stepOrder ranks the wizard steps so a request for a later step can be
// bounced back to the first unanswered one.
var stepOrder = map[string]int{
	shared.StepWiFi:    0,
	shared.StepSpotify: 1,
	shared.StepAudio:   2,
}

// wizardGuard redirects to the first incomplete step when the requested
// step comes after it. Completed steps stay reachable so answers can be
// revised.
func (s *Server) wizardGuard(w http.ResponseWriter, r *http.Request, step string) bool {
	first := s.Config().FirstIncompleteStep()
	if first == "" || stepOrder[step] <= stepOrder[first] {
		return true
	}
	http.Redirect(w, r, first, http.StatusSeeOther)
	return false
}

func (s *Server) handleWizardWiFiForm(w http.ResponseWriter, r *http.Request) {
	config := s.Config()
	s.renderPage(w, http.StatusOK, "wizard_wifi.html", map[string]any{
		"SSID": config.WiFi.SSID,
		"Done": config.WiFi.Done,
	})
}

// handleWizardWiFi writes the supplicant entry and marks the step done.
// An empty SSID with the skip flag set records the step as answered
// without touching the supplicant, for wired installs.
func (s *Server) handleWizardWiFi(w http.ResponseWriter, r *http.Request) {
	ssid := strings.TrimSpace(r.FormValue("ssid"))
	passphrase := r.FormValue("passphrase")
	skip := r.FormValue("skip") != ""

	if !skip {
		if ssid == "" {
			s.renderPage(w, http.StatusBadRequest, "wizard_wifi.html", map[string]any{
				"Error": "network name is required",
			})
			return
		}

		msg, err := s.wifiWriter().Configure(ssid, passphrase)
		if err != nil {
			s.logger.Error("wifi configuration failed", "ssid", ssid, "error", err)
			s.renderPage(w, http.StatusInternalServerError, "wizard_wifi.html", map[string]any{
				"SSID":  ssid,
				"Error": err.Error(),
			})
			return
		}
		s.logger.Info("wifi configured", "ssid", ssid, "result", msg)
	}

	next := *s.Config()
	next.WiFi.Done = true
	next.WiFi.SSID = ssid
	if err := s.saveConfig(&next); err != nil {
		s.renderError(w, http.StatusInternalServerError, err)
		return
	}

	http.Redirect(w, r, shared.StepSpotify, http.StatusSeeOther)
}

func (s *Server) handleWizardSpotifyForm(w http.ResponseWriter, r *http.Request) {
	if !s.wizardGuard(w, r, shared.StepSpotify) {
		return
	}

	config := s.Config()
	redirectURI := config.Credentials.Spotify.RedirectURI
	if redirectURI == "" {
		redirectURI = defaultRedirectURI(r, config)
	}

	s.renderPage(w, http.StatusOK, "wizard_spotify.html", map[string]any{
		"ClientID":    config.Credentials.Spotify.ClientID,
		"RedirectURI": redirectURI,
	})
}

// handleWizardSpotify stores the developer-app credentials.
func (s *Server) handleWizardSpotify(w http.ResponseWriter, r *http.Request) {
	if !s.wizardGuard(w, r, shared.StepSpotify) {
		return
	}

	clientID := strings.TrimSpace(r.FormValue("client_id"))
	clientSecret := strings.TrimSpace(r.FormValue("client_secret"))
	redirectURI := strings.TrimSpace(r.FormValue("redirect_uri"))

	if clientID == "" || clientSecret == "" {
		s.renderPage(w, http.StatusBadRequest, "wizard_spotify.html", map[string]any{
			"ClientID":    clientID,
			"RedirectURI": redirectURI,
			"Error":       "client ID and client secret are required",
		})
		return
	}
	if redirectURI == "" {
		redirectURI = defaultRedirectURI(r, s.Config())
	}
	if !strings.HasPrefix(redirectURI, "http://") && !strings.HasPrefix(redirectURI, "https://") {
		s.renderPage(w, http.StatusBadRequest, "wizard_spotify.html", map[string]any{
			"ClientID":    clientID,
			"RedirectURI": redirectURI,
			"Error":       "redirect URI must be an http or https URL",
		})
		return
	}

	next := *s.Config()
	next.Credentials.Spotify.ClientID = clientID
	next.Credentials.Spotify.ClientSecret = clientSecret
	next.Credentials.Spotify.RedirectURI = redirectURI
	if err := s.saveConfig(&next); err != nil {
		s.renderError(w, http.StatusInternalServerError, err)
		return
	}

	http.Redirect(w, r, shared.StepAudio, http.StatusSeeOther)
}

func (s *Server) handleWizardAudioForm(w http.ResponseWriter, r *http.Request) {
	if !s.wizardGuard(w, r, shared.StepAudio) {
		return
	}

	config := s.Config()
	s.renderPage(w, http.StatusOK, "wizard_audio.html", map[string]any{
		"Options":  sysconf.AudioOptions,
		"Selected": config.Audio.Output,
		"Overlay":  config.Audio.I2SOverlay,
	})
}

// handleWizardAudio applies the audio choice to the boot configuration
// and finishes setup. The app secret is generated here when missing, so
// a finished config is always ready to sign session cookies.
func (s *Server) handleWizardAudio(w http.ResponseWriter, r *http.Request) {
	if !s.wizardGuard(w, r, shared.StepAudio) {
		return
	}

	output := r.FormValue("output")
	overlay := strings.TrimSpace(r.FormValue("i2s_overlay"))

	option, err := sysconf.LookupAudioOption(output)
	if err != nil {
		s.renderPage(w, http.StatusBadRequest, "wizard_audio.html", map[string]any{
			"Options": sysconf.AudioOptions,
			"Error":   fmt.Sprintf("unknown audio output %q", output),
		})
		return
	}
	if option.Value == sysconf.GenericI2S && overlay == "" {
		s.renderPage(w, http.StatusBadRequest, "wizard_audio.html", map[string]any{
			"Options":  sysconf.AudioOptions,
			"Selected": output,
			"Error":    "an overlay name is required for a generic I2S DAC",
		})
		return
	}

	msg, err := s.audioWriter().Configure(option, overlay, s.Config().Audio.I2SOverlay)
	if err != nil {
		s.logger.Error("audio configuration failed", "output", output, "error", err)
		s.renderPage(w, http.StatusInternalServerError, "wizard_audio.html", map[string]any{
			"Options":  sysconf.AudioOptions,
			"Selected": output,
			"Overlay":  overlay,
			"Error":    err.Error(),
		})
		return
	}
	s.logger.Info("audio configured", "output", output, "result", msg)

	next := *s.Config()
	next.Audio.Output = option.Value
	next.Audio.I2SOverlay = overlay
	if next.App.SecretKey == "" {
		next.App.SecretKey = shared.GenerateSecretKey()
	}
	if err := s.saveConfig(&next); err != nil {
		s.renderError(w, http.StatusInternalServerError, err)
		return
	}

	http.Redirect(w, r, "/wizard/done", http.StatusSeeOther)
}

// handleWizardDone shows the completion page, or resumes the wizard when
// a step is still open.
func (s *Server) handleWizardDone(w http.ResponseWriter, r *http.Request) {
	config := s.Config()
	if first := config.FirstIncompleteStep(); first != "" {
		http.Redirect(w, r, first, http.StatusSeeOther)
		return
	}

	option, _ := sysconf.LookupAudioOption(config.Audio.Output)
	s.renderPage(w, http.StatusOK, "wizard_done.html", map[string]any{
		"SSID":        config.WiFi.SSID,
		"Audio":       option.Name,
		"RebootNeeds": config.Audio.Output != "" && config.Audio.Output != "analog" && config.Audio.Output != "hdmi",
	})
}

// handleWizardScan lists nearby networks as JSON for the WiFi form.
func (s *Server) handleWizardScan(w http.ResponseWriter, r *http.Request) {
	networks, err := sysconf.ScanNetworks(s.wifiWriter().Interface)
	if err != nil {
		s.logger.Warn("network scan failed", "error", err)
		s.renderJSON(w, http.StatusOK, map[string]any{
			"networks": []sysconf.Network{},
			"error":    "scan unavailable",
		})
		return
	}

	s.renderJSON(w, http.StatusOK, map[string]any{"networks": networks})
}

// defaultRedirectURI derives the OAuth redirect from the incoming host,
// which is what the browser will be using after setup.
func defaultRedirectURI(r *http.Request, config *shared.Config) string {
	host := r.Host
	if host == "" {
		host = config.Server.Addr()
	}
	return fmt.Sprintf("http://%s/callback", host)
}
