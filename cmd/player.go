package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spotipi/spotipi/internal/formatter"
	"github.com/spotipi/spotipi/internal/models"
	"github.com/spotipi/spotipi/internal/repositories"
	"github.com/spotipi/spotipi/internal/services"
	"github.com/spotipi/spotipi/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// borrowedPlayer is a Spotify client built from the kiosk browser's most
// recent login, for driving playback queries over SSH.
type borrowedPlayer struct {
	service *services.SpotifyService
	session *models.Session
	close   func() error
}

// borrowSession opens the session store and builds a client around the
// newest unexpired session's token. Refreshed tokens are written back so
// the browser session stays valid.
func (r *Runner) borrowSession(configPath string) (*borrowedPlayer, error) {
	config := r.loadConfig(configPath)
	if !config.Credentials.Spotify.Complete() {
		return nil, fmt.Errorf("%w: run setup first", shared.ErrMissingCredentials)
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sessions := repositories.NewSessionRepository(db)
	session, err := sessions.Latest()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: log in through the web player first", err)
	}

	token, err := session.Token()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to decode session token: %w", err)
	}

	svc, err := services.NewSpotifyService(config.Credentials.Spotify.Map())
	if err != nil {
		db.Close()
		return nil, err
	}
	svc.SetToken(token)

	id := session.ID()
	svc.OnTokenRefresh(func(refreshed *oauth2.Token) {
		encoded, err := json.Marshal(refreshed)
		if err != nil {
			r.logger.Warn("failed to encode refreshed token", "error", err)
			return
		}
		if err := sessions.UpdateToken(id, string(encoded)); err != nil {
			r.logger.Warn("failed to persist refreshed token", "error", err)
		}
	})

	return &borrowedPlayer{service: svc, session: session, close: db.Close}, nil
}

// Now prints the current playback state.
func (r *Runner) Now(ctx context.Context, cmd *cli.Command) error {
	player, err := r.borrowSession(cmd.String("config"))
	if err != nil {
		return err
	}
	defer player.close()

	state, err := player.service.CurrentPlayback(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch playback: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(state, true)
	}
	return r.writePlain("%s", formatter.PlaybackToText(state))
}

// SearchTracks prints track matches for a query.
func (r *Runner) SearchTracks(ctx context.Context, cmd *cli.Command) error {
	query := cmd.Args().First()
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}

	player, err := r.borrowSession(cmd.String("config"))
	if err != nil {
		return err
	}
	defer player.close()

	tracks, err := player.service.Search(ctx, query, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	switch format := cmd.String("format"); format {
	case "text":
		return r.writePlain("%s", formatter.TracksToText(tracks))
	case "csv":
		data, err := formatter.TracksToCSV(tracks)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	case "markdown":
		return r.writePlain("%s", formatter.TracksToMarkdown(fmt.Sprintf("Results for %q", query), tracks))
	case "json":
		return r.writeJSON(map[string]any{"tracks": tracks}, true)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// DevicesList prints the playback devices visible to the account.
func (r *Runner) DevicesList(ctx context.Context, cmd *cli.Command) error {
	player, err := r.borrowSession(cmd.String("config"))
	if err != nil {
		return err
	}
	defer player.close()

	devices, err := player.service.Devices(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch devices: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"devices": devices}, true)
	}
	return r.writePlain("%s", formatter.DevicesToText(devices, player.session.DeviceID()))
}
