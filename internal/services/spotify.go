// Spotify implementation of [Player]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/spotipi/spotipi/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// tokenLeeway treats tokens expiring within this window as expired so a
	// request never goes out with a token about to lapse mid-flight.
	tokenLeeway = 60 * time.Second
)

// spotifyScopes covers playback control, playback state, search and
// library browsing for the kiosk player.
var spotifyScopes = []string{
	"user-modify-playback-state",
	"user-read-playback-state",
	"user-read-currently-playing",
	"user-read-playback-position",
	"streaming",
	"playlist-read-private",
	"playlist-read-collaborative",
	"user-library-read",
}

// SpotifyService implements [Player] against the Spotify Web API.
//
// Authentication uses [oauth2] authorization-code flow. On a 401 response
// the service performs exactly one token refresh and retries the original
// call once; a second 401 is surfaced as an authentication error. Requests
// pass through a [rate.Limiter] so the kiosk's status polling cannot
// hammer the vendor.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	limiter    *rate.Limiter

	mu        sync.Mutex
	token     *oauth2.Token
	onRefresh func(*oauth2.Token)

	// Overridable in tests.
	baseURL string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:8000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       spotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
		baseURL:    spotifyBaseURL,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
// The state token should be cryptographically random for CSRF protection.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token pair and installs it
// on the service.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	s.SetToken(token)
	return token, nil
}

// SetToken installs a previously stored token pair.
func (s *SpotifyService) SetToken(token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Token returns the current token pair, or nil when unauthenticated.
func (s *SpotifyService) Token() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// CurrentToken returns a token fresh enough to hand to the web playback
// SDK, refreshing first when the stored one is expired or about to expire.
func (s *SpotifyService) CurrentToken(ctx context.Context) (*oauth2.Token, error) {
	if s.Token() == nil {
		return nil, fmt.Errorf("%w: no token installed", shared.ErrNotAuthenticated)
	}
	if expired(s.Token()) {
		if err := s.refresh(ctx); err != nil {
			return nil, err
		}
	}
	return s.Token(), nil
}

// OnTokenRefresh registers a hook invoked with each refreshed token so the
// caller can persist it.
func (s *SpotifyService) OnTokenRefresh(fn func(*oauth2.Token)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

// expired reports whether the token is missing an expiry-safe access token.
func expired(t *oauth2.Token) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	if t.Expiry.IsZero() {
		return false
	}
	return time.Until(t.Expiry) < tokenLeeway
}

// refresh exchanges the stored refresh token for a new token pair. The
// old refresh token is kept when the vendor omits one from the response.
func (s *SpotifyService) refresh(ctx context.Context) error {
	s.mu.Lock()
	current := s.token
	s.mu.Unlock()

	if current == nil || current.RefreshToken == "" {
		return shared.ErrNoRefreshToken
	}

	// An empty access token forces the token source to hit the refresh
	// endpoint instead of returning the cached token.
	src := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken})
	token, err := src.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	if token.RefreshToken == "" {
		token.RefreshToken = current.RefreshToken
	}

	s.mu.Lock()
	s.token = token
	hook := s.onRefresh
	s.mu.Unlock()

	if hook != nil {
		hook(token)
	}
	return nil
}

// doRequest performs one authenticated call to the Spotify API.
//
// A 401 triggers a single refresh-and-retry; a second 401 surfaces
// [shared.ErrNotAuthenticated] without a further refresh attempt. A 204
// returns errNoContent for callers that treat it as an empty state. Any
// other non-2xx becomes an [*APIError]. No other retries.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, result any) error {
	if s.Token() == nil {
		return fmt.Errorf("%w: no token installed", shared.ErrNotAuthenticated)
	}

	if expired(s.Token()) {
		if err := s.refresh(ctx); err != nil {
			return err
		}
		return s.send(ctx, method, endpoint, query, body, result, false)
	}

	return s.send(ctx, method, endpoint, query, body, result, true)
}

// send performs the HTTP round trip. allowRefresh permits the single
// reactive refresh on 401.
func (s *SpotifyService) send(ctx context.Context, method, endpoint string, query url.Values, body, result any, allowRefresh bool) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.Token().AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if !allowRefresh {
			return fmt.Errorf("%w: token rejected after refresh", shared.ErrNotAuthenticated)
		}
		if err := s.refresh(ctx); err != nil {
			return err
		}
		return s.send(ctx, method, endpoint, query, body, result, false)
	}

	if resp.StatusCode == http.StatusNoContent {
		return errNoContent
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// errNoContent marks a 204 response; callers map it to an empty state.
var errNoContent = fmt.Errorf("no content")

// decodeAPIError builds an [*APIError] from a vendor error body of the
// form {"error": {"status": n, "message": "...", "reason": "..."}}. The
// no-active-device reason is mapped to its sentinel so handlers can give
// the listener a useful answer instead of a bare 404.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Error struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
			Reason  string `json:"reason"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		apiErr.Message = payload.Error.Message
	}

	if payload.Error.Reason == "NO_ACTIVE_DEVICE" {
		return fmt.Errorf("%w: %s", shared.ErrNoActiveDevice, apiErr.Message)
	}
	if payload.Error.Reason == "DEVICE_NOT_FOUND" {
		return fmt.Errorf("%w: %s", shared.ErrDeviceNotFound, apiErr.Message)
	}

	return apiErr
}

// Vendor-shaped response types.

type spotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Artists     []spotifyArtist `json:"artists"`
	ReleaseDate string         `json:"release_date"`
	TotalTracks int            `json:"total_tracks"`
	Images      []spotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

type spotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []spotifyArtist `json:"artists"`
	Album      spotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

type spotifyDevice struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	IsActive      bool   `json:"is_active"`
	VolumePercent int    `json:"volume_percent"`
}

type playbackResponse struct {
	IsPlaying    bool          `json:"is_playing"`
	ProgressMS   int           `json:"progress_ms"`
	ShuffleState bool          `json:"shuffle_state"`
	RepeatState  string        `json:"repeat_state"`
	Item         *spotifyTrack `json:"item"`
	Device       *spotifyDevice `json:"device"`
}

func (t *spotifyTrack) display() *Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	track := &Track{
		ID:         t.ID,
		Name:       t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		DurationMS: t.DurationMS,
		URI:        t.URI,
	}
	if len(t.Album.Images) > 0 {
		track.Image = t.Album.Images[0].URL
	}
	return track
}

func (d *spotifyDevice) display() *Device {
	return &Device{
		ID:       d.ID,
		Name:     d.Name,
		Type:     d.Type,
		IsActive: d.IsActive,
		Volume:   d.VolumePercent,
	}
}

// CurrentPlayback returns the playback snapshot, or (nil, nil) when the
// vendor answers 204 (nothing playing, no active device).
func (s *SpotifyService) CurrentPlayback(ctx context.Context) (*PlaybackState, error) {
	query := url.Values{"additional_types": {"track,episode"}}

	var resp playbackResponse
	err := s.doRequest(ctx, http.MethodGet, "/me/player", query, nil, &resp)
	if err == errNoContent {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &PlaybackState{
		IsPlaying:    resp.IsPlaying,
		ProgressMS:   resp.ProgressMS,
		ShuffleState: resp.ShuffleState,
		RepeatState:  resp.RepeatState,
	}
	if resp.Item != nil {
		state.Item = resp.Item.display()
	}
	if resp.Device != nil {
		state.Device = resp.Device.display()
	}
	return state, nil
}

// Devices lists the playback devices visible to the account.
func (s *SpotifyService) Devices(ctx context.Context) ([]Device, error) {
	var resp struct {
		Devices []spotifyDevice `json:"devices"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/me/player/devices", nil, nil, &resp); err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		devices = append(devices, *d.display())
	}
	return devices, nil
}

func deviceQuery(deviceID string) url.Values {
	if deviceID == "" {
		return nil
	}
	return url.Values{"device_id": {deviceID}}
}

// Play starts or resumes playback.
func (s *SpotifyService) Play(ctx context.Context, deviceID string) error {
	err := s.doRequest(ctx, http.MethodPut, "/me/player/play", deviceQuery(deviceID), nil, nil)
	if err == errNoContent {
		return nil
	}
	return err
}

// PlayContext starts playback of a playlist or album by its URI.
func (s *SpotifyService) PlayContext(ctx context.Context, deviceID, contextURI string) error {
	body := map[string]any{"context_uri": contextURI}
	err := s.doRequest(ctx, http.MethodPut, "/me/player/play", deviceQuery(deviceID), body, nil)
	if err == errNoContent {
		return nil
	}
	return err
}

// Pause pauses playback.
func (s *SpotifyService) Pause(ctx context.Context, deviceID string) error {
	err := s.doRequest(ctx, http.MethodPut, "/me/player/pause", deviceQuery(deviceID), nil, nil)
	if err == errNoContent {
		return nil
	}
	return err
}

// Next skips to the next track.
func (s *SpotifyService) Next(ctx context.Context, deviceID string) error {
	err := s.doRequest(ctx, http.MethodPost, "/me/player/next", deviceQuery(deviceID), nil, nil)
	if err == errNoContent {
		return nil
	}
	return err
}

// Previous skips to the previous track.
func (s *SpotifyService) Previous(ctx context.Context, deviceID string) error {
	err := s.doRequest(ctx, http.MethodPost, "/me/player/previous", deviceQuery(deviceID), nil, nil)
	if err == errNoContent {
		return nil
	}
	return err
}

// TransferPlayback moves playback to the given device. play keeps the
// current item playing on the new device.
func (s *SpotifyService) TransferPlayback(ctx context.Context, deviceID string, play bool) error {
	body := map[string]any{
		"device_ids": []string{deviceID},
		"play":       play,
	}
	err := s.doRequest(ctx, http.MethodPut, "/me/player", nil, body, nil)
	if err == errNoContent {
		return nil
	}
	return err
}

// Enqueue adds a track to the playback queue.
func (s *SpotifyService) Enqueue(ctx context.Context, trackID, deviceID string) error {
	query := url.Values{"uri": {"spotify:track:" + trackID}}
	if deviceID != "" {
		query.Set("device_id", deviceID)
	}
	err := s.doRequest(ctx, http.MethodPost, "/me/player/queue", query, nil, nil)
	if err == errNoContent {
		return nil
	}
	return err
}

// Search returns track results for the query, preserving vendor order.
func (s *SpotifyService) Search(ctx context.Context, query string, limit int) ([]Track, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	q := url.Values{
		"q":     {query},
		"type":  {"track"},
		"limit": {strconv.Itoa(limit)},
	}

	var resp struct {
		Tracks struct {
			Items []spotifyTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := s.doRequest(ctx, http.MethodGet, "/search", q, nil, &resp); err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(resp.Tracks.Items))
	for _, item := range resp.Tracks.Items {
		tracks = append(tracks, *item.display())
	}
	return tracks, nil
}

type paginated[T any] struct {
	Items  []T     `json:"items"`
	Total  int     `json:"total"`
	Offset int     `json:"offset"`
	Next   *string `json:"next"`
}

func pageQuery(limit, offset int) url.Values {
	if limit <= 0 {
		limit = 50
	}
	if limit > 50 {
		limit = 50
	}
	return url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
}

// UserPlaylists returns one page of the account's playlists.
func (s *SpotifyService) UserPlaylists(ctx context.Context, limit, offset int) (*Page[Playlist], error) {
	var resp paginated[struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Owner       struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"owner"`
		Public bool `json:"public"`
		Tracks struct {
			Total int `json:"total"`
		} `json:"tracks"`
		Images []spotifyImage `json:"images"`
		URI    string         `json:"uri"`
	}]
	if err := s.doRequest(ctx, http.MethodGet, "/me/playlists", pageQuery(limit, offset), nil, &resp); err != nil {
		return nil, err
	}

	page := &Page[Playlist]{Total: resp.Total, Offset: resp.Offset, HasMore: resp.Next != nil}
	for _, p := range resp.Items {
		owner := p.Owner.DisplayName
		if owner == "" {
			owner = p.Owner.ID
		}
		playlist := Playlist{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Owner:       owner,
			TrackCount:  p.Tracks.Total,
			Public:      p.Public,
			URI:         p.URI,
		}
		if len(p.Images) > 0 {
			playlist.Image = p.Images[0].URL
		}
		page.Items = append(page.Items, playlist)
	}
	return page, nil
}

// SavedTracks returns one page of the account's saved tracks.
func (s *SpotifyService) SavedTracks(ctx context.Context, limit, offset int) (*Page[Track], error) {
	var resp paginated[struct {
		AddedAt string       `json:"added_at"`
		Track   spotifyTrack `json:"track"`
	}]
	if err := s.doRequest(ctx, http.MethodGet, "/me/tracks", pageQuery(limit, offset), nil, &resp); err != nil {
		return nil, err
	}

	page := &Page[Track]{Total: resp.Total, Offset: resp.Offset, HasMore: resp.Next != nil}
	for _, item := range resp.Items {
		page.Items = append(page.Items, *item.Track.display())
	}
	return page, nil
}

// SavedAlbums returns one page of the account's saved albums.
func (s *SpotifyService) SavedAlbums(ctx context.Context, limit, offset int) (*Page[Album], error) {
	var resp paginated[struct {
		Album spotifyAlbum `json:"album"`
	}]
	if err := s.doRequest(ctx, http.MethodGet, "/me/albums", pageQuery(limit, offset), nil, &resp); err != nil {
		return nil, err
	}

	page := &Page[Album]{Total: resp.Total, Offset: resp.Offset, HasMore: resp.Next != nil}
	for _, item := range resp.Items {
		artists := make([]string, 0, len(item.Album.Artists))
		for _, a := range item.Album.Artists {
			artists = append(artists, a.Name)
		}
		album := Album{
			ID:          item.Album.ID,
			Name:        item.Album.Name,
			Artists:     artists,
			ReleaseDate: item.Album.ReleaseDate,
			TotalTracks: item.Album.TotalTracks,
			URI:         item.Album.URI,
		}
		if len(item.Album.Images) > 0 {
			album.Image = item.Album.Images[0].URL
		}
		page.Items = append(page.Items, album)
	}
	return page, nil
}

// PlaylistTracks returns one page of a playlist's tracks.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*Page[Track], error) {
	var resp paginated[struct {
		Track *spotifyTrack `json:"track"`
	}]
	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	if err := s.doRequest(ctx, http.MethodGet, endpoint, pageQuery(limit, offset), nil, &resp); err != nil {
		return nil, err
	}

	page := &Page[Track]{Total: resp.Total, Offset: resp.Offset, HasMore: resp.Next != nil}
	for _, item := range resp.Items {
		// Deleted or region-blocked tracks come back null.
		if item.Track != nil {
			page.Items = append(page.Items, *item.Track.display())
		}
	}
	return page, nil
}
