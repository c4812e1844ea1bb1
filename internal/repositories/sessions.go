// package repositories provides the persistence layer for browser sessions.
package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spotipi/spotipi/internal/models"
	"github.com/spotipi/spotipi/internal/shared"
)

// SessionRepository persists [models.Session] rows in SQLite.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session with a generated ID.
func (r *SessionRepository) Create(session *models.Session) error {
	session.SetID(shared.GenerateID())

	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO sessions (id, token_json, device_id, manual_device, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, session.ID(), session.TokenJSON(), session.DeviceID(),
		session.ManualDevice(), session.CreatedAt(), session.ExpiresAt())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// Get retrieves a session by ID. Expired sessions are treated as absent.
func (r *SessionRepository) Get(id string) (*models.Session, error) {
	query := `
		SELECT id, token_json, device_id, manual_device, created_at, expires_at
		FROM sessions
		WHERE id = ?
	`

	var (
		sessionID    string
		tokenJSON    string
		deviceID     string
		manualDevice bool
		createdAt    time.Time
		expiresAt    time.Time
	)

	err := r.db.QueryRow(query, id).Scan(&sessionID, &tokenJSON, &deviceID, &manualDevice, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	session := &models.Session{}
	session.SetID(sessionID)
	session.SetTokenJSON(tokenJSON)
	session.SetDevice(deviceID, manualDevice)
	session.SetCreatedAt(createdAt)
	session.SetExpiresAt(expiresAt)

	if session.Expired() {
		return nil, fmt.Errorf("%w: %s expired", shared.ErrSessionNotFound, id)
	}

	return session, nil
}

// Latest returns the most recently created unexpired session. Command
// line tools use it to borrow the kiosk browser's login.
func (r *SessionRepository) Latest() (*models.Session, error) {
	query := `
		SELECT id, token_json, device_id, manual_device, created_at, expires_at
		FROM sessions
		WHERE expires_at > ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var (
		sessionID    string
		tokenJSON    string
		deviceID     string
		manualDevice bool
		createdAt    time.Time
		expiresAt    time.Time
	)

	err := r.db.QueryRow(query, time.Now().UTC()).Scan(&sessionID, &tokenJSON, &deviceID, &manualDevice, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no active sessions", shared.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	session := &models.Session{}
	session.SetID(sessionID)
	session.SetTokenJSON(tokenJSON)
	session.SetDevice(deviceID, manualDevice)
	session.SetCreatedAt(createdAt)
	session.SetExpiresAt(expiresAt)

	return session, nil
}

// UpdateToken replaces the stored token JSON for a session.
func (r *SessionRepository) UpdateToken(id, tokenJSON string) error {
	result, err := r.db.Exec(`UPDATE sessions SET token_json = ? WHERE id = ?`, tokenJSON, id)
	if err != nil {
		return fmt.Errorf("failed to update session token: %w", err)
	}
	return requireRow(result, id)
}

// UpdateDevice replaces the stored device selection for a session.
func (r *SessionRepository) UpdateDevice(id, deviceID string, manual bool) error {
	result, err := r.db.Exec(`UPDATE sessions SET device_id = ?, manual_device = ? WHERE id = ?`,
		deviceID, manual, id)
	if err != nil {
		return fmt.Errorf("failed to update session device: %w", err)
	}
	return requireRow(result, id)
}

// Delete removes a session, ending the login.
func (r *SessionRepository) Delete(id string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes sessions past their expiry and returns how many
// rows were deleted.
func (r *SessionRepository) PurgeExpired() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}

func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	return nil
}
