// package services wraps the streaming vendor's REST API behind typed calls.
package services

import (
	"context"
	"fmt"
)

// Player defines the operations the view layer needs from a streaming
// service: playback state, transport controls, search and queueing.
type Player interface {
	// CurrentPlayback returns the playback snapshot, or (nil, nil) when the
	// vendor reports nothing playing and no active device.
	CurrentPlayback(ctx context.Context) (*PlaybackState, error)

	// Devices lists the devices currently visible to the account.
	Devices(ctx context.Context) ([]Device, error)

	// Play starts or resumes playback, optionally on a specific device.
	Play(ctx context.Context, deviceID string) error

	// Pause pauses playback, optionally on a specific device.
	Pause(ctx context.Context, deviceID string) error

	// Next skips to the next track.
	Next(ctx context.Context, deviceID string) error

	// Previous skips to the previous track.
	Previous(ctx context.Context, deviceID string) error

	// Search returns track results for the query in vendor order.
	Search(ctx context.Context, query string, limit int) ([]Track, error)

	// Enqueue adds a track to the playback queue.
	Enqueue(ctx context.Context, trackID, deviceID string) error

	// TransferPlayback moves playback to the given device.
	TransferPlayback(ctx context.Context, deviceID string, play bool) error

	// Name returns the name of the service (e.g. "Spotify").
	Name() string
}

// Track is the display shape of a track, reduced from the vendor DTO.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	Image      string   `json:"image,omitempty"`
	DurationMS int      `json:"duration_ms"`
	URI        string   `json:"uri,omitempty"`
}

// Device is a playback device visible to the account.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsActive bool   `json:"is_active"`
	Volume   int    `json:"volume"`
}

// PlaybackState is a read-only snapshot of what is playing. It is fetched
// per page view or poll and never persisted.
type PlaybackState struct {
	IsPlaying    bool    `json:"is_playing"`
	ProgressMS   int     `json:"progress_ms"`
	ShuffleState bool    `json:"shuffle_state"`
	RepeatState  string  `json:"repeat_state"`
	Item         *Track  `json:"track"`
	Device       *Device `json:"device"`
}

// Playlist is the display shape of a playlist.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	Owner       string `json:"owner"`
	TrackCount  int    `json:"tracks_count"`
	Public      bool   `json:"public"`
	URI         string `json:"uri,omitempty"`
}

// Album is the display shape of a saved album.
type Album struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	Image       string   `json:"image,omitempty"`
	ReleaseDate string   `json:"release_date"`
	TotalTracks int      `json:"total_tracks"`
	URI         string   `json:"uri,omitempty"`
}

// Page carries one page of results plus whether more are available.
type Page[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// APIError is a non-success vendor response: the HTTP status and the
// vendor's message when one was parseable from the error body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify API error: status %d", e.Status)
	}
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Message)
}
