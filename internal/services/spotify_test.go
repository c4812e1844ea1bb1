package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spotipi/spotipi/internal/shared"
	"golang.org/x/oauth2"
)

func newTestService(t *testing.T, handler http.Handler) (*SpotifyService, *httptest.Server) {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	srv, err := NewSpotifyService(map[string]string{
		"client_id":     "test_client_id",
		"client_secret": "test_client_secret",
		"redirect_uri":  "http://127.0.0.1:8000/callback",
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	srv.baseURL = ts.URL
	srv.config.Endpoint.TokenURL = ts.URL + "/api/token"
	srv.SetToken(&oauth2.Token{
		AccessToken:  "old_access_token",
		RefreshToken: "test_refresh_token",
		Expiry:       time.Now().Add(time.Hour),
	})

	return srv, ts
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			srv, err := NewSpotifyService(map[string]string{
				"client_id":     "test_client_id",
				"client_secret": "test_client_secret",
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.Name() != "Spotify" {
				t.Errorf("expected service name 'Spotify', got %s", srv.Name())
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_secret": "x"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_id": "x"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("AuthURL", func(t *testing.T) {
		srv, err := NewSpotifyService(map[string]string{
			"client_id":     "test_client_id",
			"client_secret": "test_client_secret",
		})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		authURL := srv.AuthURL("test_state")
		if !strings.Contains(authURL, "accounts.spotify.com") {
			t.Errorf("expected vendor auth host in %s", authURL)
		}
		if !strings.Contains(authURL, "state=test_state") {
			t.Errorf("expected state parameter in %s", authURL)
		}
		if !strings.Contains(authURL, "user-modify-playback-state") {
			t.Errorf("expected playback scope in %s", authURL)
		}
	})

	t.Run("Unauthenticated Request", func(t *testing.T) {
		srv, err := NewSpotifyService(map[string]string{
			"client_id":     "test_client_id",
			"client_secret": "test_client_secret",
		})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		_, err = srv.CurrentPlayback(context.Background())
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestSpotifyTokenRefresh(t *testing.T) {
	t.Run("Refreshes Once On 401 And Retries", func(t *testing.T) {
		var refreshes, playerCalls atomic.Int32

		mux := http.NewServeMux()
		mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
			refreshes.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"new_access_token","token_type":"Bearer","expires_in":3600}`)
		})
		mux.HandleFunc("/me/player", func(w http.ResponseWriter, r *http.Request) {
			playerCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer new_access_token" {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"error":{"status":401,"message":"The access token expired"}}`)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"is_playing":true,"progress_ms":1000,"item":{"id":"t1","name":"Song","duration_ms":200000,"artists":[{"name":"Artist"}],"album":{"name":"Album"}}}`)
		})

		srv, _ := newTestService(t, mux)

		state, err := srv.CurrentPlayback(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if state == nil || !state.IsPlaying {
			t.Fatal("expected playing state after retry")
		}
		if got := refreshes.Load(); got != 1 {
			t.Errorf("expected exactly 1 refresh, got %d", got)
		}
		if got := playerCalls.Load(); got != 2 {
			t.Errorf("expected original call plus one retry, got %d", got)
		}
		if srv.Token().AccessToken != "new_access_token" {
			t.Errorf("expected refreshed token installed, got %s", srv.Token().AccessToken)
		}
	})

	t.Run("Second 401 Does Not Refresh Again", func(t *testing.T) {
		var refreshes, playerCalls atomic.Int32

		mux := http.NewServeMux()
		mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
			refreshes.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"still_bad","token_type":"Bearer","expires_in":3600}`)
		})
		mux.HandleFunc("/me/player", func(w http.ResponseWriter, r *http.Request) {
			playerCalls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"status":401,"message":"Invalid access token"}}`)
		})

		srv, _ := newTestService(t, mux)

		_, err := srv.CurrentPlayback(context.Background())
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated, got %v", err)
		}
		if got := refreshes.Load(); got != 1 {
			t.Errorf("expected exactly 1 refresh, got %d", got)
		}
		if got := playerCalls.Load(); got != 2 {
			t.Errorf("expected exactly 2 player calls, got %d", got)
		}
	})

	t.Run("Proactive Refresh When Token Expired", func(t *testing.T) {
		var refreshes atomic.Int32

		mux := http.NewServeMux()
		mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
			refreshes.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"new_access_token","token_type":"Bearer","expires_in":3600}`)
		})
		mux.HandleFunc("/me/player/devices", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"devices":[]}`)
		})

		srv, _ := newTestService(t, mux)
		srv.SetToken(&oauth2.Token{
			AccessToken:  "old_access_token",
			RefreshToken: "test_refresh_token",
			Expiry:       time.Now().Add(-time.Minute),
		})

		if _, err := srv.Devices(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := refreshes.Load(); got != 1 {
			t.Errorf("expected 1 proactive refresh, got %d", got)
		}
	})

	t.Run("Keeps Refresh Token When Omitted", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"new_access_token","token_type":"Bearer","expires_in":3600}`)
		})

		srv, _ := newTestService(t, mux)
		srv.SetToken(&oauth2.Token{
			AccessToken:  "old_access_token",
			RefreshToken: "test_refresh_token",
			Expiry:       time.Now().Add(-time.Minute),
		})

		token, err := srv.CurrentToken(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token.RefreshToken != "test_refresh_token" {
			t.Errorf("expected old refresh token kept, got %s", token.RefreshToken)
		}
	})

	t.Run("Refresh Hook Invoked", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"new_access_token","token_type":"Bearer","expires_in":3600}`)
		})

		srv, _ := newTestService(t, mux)
		srv.SetToken(&oauth2.Token{
			AccessToken:  "old_access_token",
			RefreshToken: "test_refresh_token",
			Expiry:       time.Now().Add(-time.Minute),
		})

		var persisted *oauth2.Token
		srv.OnTokenRefresh(func(token *oauth2.Token) { persisted = token })

		if _, err := srv.CurrentToken(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if persisted == nil || persisted.AccessToken != "new_access_token" {
			t.Error("expected hook to receive the refreshed token")
		}
	})

	t.Run("No Refresh Token", func(t *testing.T) {
		srv, _ := newTestService(t, http.NewServeMux())
		srv.SetToken(&oauth2.Token{
			AccessToken: "old_access_token",
			Expiry:      time.Now().Add(-time.Minute),
		})

		_, err := srv.CurrentToken(context.Background())
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})
}

func TestSpotifyPlayback(t *testing.T) {
	t.Run("CurrentPlayback", func(t *testing.T) {
		t.Run("No Content Means Nothing Playing", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/me/player", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})

			srv, _ := newTestService(t, mux)

			state, err := srv.CurrentPlayback(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if state != nil {
				t.Errorf("expected nil state, got %+v", state)
			}
		})

		t.Run("Maps Vendor Response", func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/me/player", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{
					"is_playing": true,
					"progress_ms": 42000,
					"shuffle_state": true,
					"repeat_state": "context",
					"item": {
						"id": "track1",
						"name": "Test Song",
						"duration_ms": 180000,
						"uri": "spotify:track:track1",
						"artists": [{"name": "First"}, {"name": "Second"}],
						"album": {"name": "Test Album", "images": [{"url": "http://img/1", "width": 640, "height": 640}]}
					},
					"device": {"id": "dev1", "name": "Kitchen", "type": "Speaker", "is_active": true, "volume_percent": 60}
				}`)
			})

			srv, _ := newTestService(t, mux)

			state, err := srv.CurrentPlayback(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if state.Item == nil || state.Item.Name != "Test Song" {
				t.Fatalf("expected track mapped, got %+v", state.Item)
			}
			if len(state.Item.Artists) != 2 || state.Item.Artists[0] != "First" {
				t.Errorf("expected artist names in order, got %v", state.Item.Artists)
			}
			if state.Item.Image != "http://img/1" {
				t.Errorf("expected album image, got %s", state.Item.Image)
			}
			if state.Device == nil || state.Device.Name != "Kitchen" || state.Device.Volume != 60 {
				t.Errorf("expected device mapped, got %+v", state.Device)
			}
		})
	})

	t.Run("Control Endpoints Accept No Content", func(t *testing.T) {
		mux := http.NewServeMux()
		for _, path := range []string{"/me/player/play", "/me/player/pause", "/me/player/next", "/me/player/previous", "/me/player/queue"} {
			mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		}

		srv, _ := newTestService(t, mux)
		ctx := context.Background()

		for name, call := range map[string]func() error{
			"play":     func() error { return srv.Play(ctx, "dev1") },
			"pause":    func() error { return srv.Pause(ctx, "dev1") },
			"next":     func() error { return srv.Next(ctx, "dev1") },
			"previous": func() error { return srv.Previous(ctx, "dev1") },
			"enqueue":  func() error { return srv.Enqueue(ctx, "track1", "dev1") },
		} {
			if err := call(); err != nil {
				t.Errorf("%s: expected no error, got %v", name, err)
			}
		}
	})

	t.Run("No Active Device", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me/player/play", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"status":404,"message":"Player command failed: No active device found","reason":"NO_ACTIVE_DEVICE"}}`)
		})

		srv, _ := newTestService(t, mux)

		err := srv.Play(context.Background(), "")
		if !errors.Is(err, shared.ErrNoActiveDevice) {
			t.Errorf("expected ErrNoActiveDevice, got %v", err)
		}
	})

	t.Run("API Error Decoded", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/me/player/devices", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"status":403,"message":"Premium required"}}`)
		})

		srv, _ := newTestService(t, mux)

		_, err := srv.Devices(context.Background())
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.Status != 403 || apiErr.Message != "Premium required" {
			t.Errorf("unexpected APIError: %+v", apiErr)
		}
	})
}

func TestSpotifySearch(t *testing.T) {
	t.Run("Shapes Results In Vendor Order", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("type"); got != "track" {
				t.Errorf("expected type=track, got %s", got)
			}
			if got := r.URL.Query().Get("q"); got != "test query" {
				t.Errorf("expected query passthrough, got %s", got)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"tracks":{"items":[
				{"id":"a","name":"Alpha","duration_ms":1,"artists":[{"name":"X"}],"album":{"name":"AA"}},
				{"id":"b","name":"Beta","duration_ms":2,"artists":[{"name":"Y"}],"album":{"name":"BB"}}
			],"total":2}}`)
		})

		srv, _ := newTestService(t, mux)

		tracks, err := srv.Search(context.Background(), "test query", 20)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		if tracks[0].ID != "a" || tracks[1].ID != "b" {
			t.Errorf("expected vendor order preserved, got %s then %s", tracks[0].ID, tracks[1].ID)
		}
	})

	t.Run("Clamps Limit", func(t *testing.T) {
		var gotLimit string
		mux := http.NewServeMux()
		mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
			gotLimit = r.URL.Query().Get("limit")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"tracks":{"items":[],"total":0}}`)
		})

		srv, _ := newTestService(t, mux)

		if _, err := srv.Search(context.Background(), "q", 500); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gotLimit != "50" {
			t.Errorf("expected limit clamped to 50, got %s", gotLimit)
		}
	})
}
