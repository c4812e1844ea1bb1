// package models defines the persistent data model for the kiosk player.
package models

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// Session is a browser session. It carries the OAuth token pair issued
// for this browser and the listener's playback-device choice. Sessions
// outlive process restarts so a kiosk reboot does not force a re-login.
type Session struct {
	id           string
	tokenJSON    string
	deviceID     string
	manualDevice bool
	createdAt    time.Time
	expiresAt    time.Time
}

// NewSession creates a session expiring after ttl. The ID is assigned by
// the repository on insert.
func NewSession(ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) TokenJSON() string    { return s.tokenJSON }
func (s *Session) DeviceID() string     { return s.deviceID }
func (s *Session) ManualDevice() bool   { return s.manualDevice }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

func (s *Session) SetID(id string)             { s.id = id }
func (s *Session) SetTokenJSON(token string)   { s.tokenJSON = token }
func (s *Session) SetCreatedAt(t time.Time)    { s.createdAt = t }
func (s *Session) SetExpiresAt(t time.Time)    { s.expiresAt = t }

// Token decodes the stored OAuth token.
func (s *Session) Token() (*oauth2.Token, error) {
	var token oauth2.Token
	if err := json.Unmarshal([]byte(s.tokenJSON), &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// SetToken stores an OAuth token as the session's token.
func (s *Session) SetToken(token *oauth2.Token) error {
	encoded, err := json.Marshal(token)
	if err != nil {
		return err
	}
	s.tokenJSON = string(encoded)
	return nil
}

// SetDevice records the selected playback device. manual marks a choice
// the listener made explicitly, which suppresses auto-syncing to whatever
// device the vendor reports as active.
func (s *Session) SetDevice(deviceID string, manual bool) {
	s.deviceID = deviceID
	s.manualDevice = manual
}

// Expired reports whether the session has passed its expiry.
func (s *Session) Expired() bool {
	return time.Now().After(s.expiresAt)
}

// Validate checks that the session is well formed.
func (s *Session) Validate() error {
	if s.expiresAt.Before(s.createdAt) {
		return errExpiryBeforeCreation
	}
	return nil
}

type validationError string

func (e validationError) Error() string { return string(e) }

const errExpiryBeforeCreation = validationError("session expiry precedes creation")
