package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spotipi/spotipi/internal/repositories"
	"github.com/spotipi/spotipi/internal/server"
	"github.com/spotipi/spotipi/internal/services"
	"github.com/spotipi/spotipi/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const purgeInterval = 6 * time.Hour

// spotifyAuth builds a fresh OAuth client from the live configuration on
// every call, so credentials entered through the wizard take effect
// without a restart.
type spotifyAuth struct {
	config func() *shared.Config
}

func (a *spotifyAuth) service() (*services.SpotifyService, error) {
	return services.NewSpotifyService(a.config().Credentials.Spotify.Map())
}

func (a *spotifyAuth) AuthURL(state string) string {
	svc, err := a.service()
	if err != nil {
		return ""
	}
	return svc.AuthURL(state)
}

func (a *spotifyAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	svc, err := a.service()
	if err != nil {
		return nil, err
	}
	return svc.Exchange(ctx, code)
}

// Serve runs the web server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	config := r.loadConfig(configPath)

	if host := cmd.String("host"); host != "" {
		config.Server.Host = host
	}
	if port := cmd.Int("port"); port != 0 {
		config.Server.Port = int(port)
	}
	if config.App.Debug {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	sessions := repositories.NewSessionRepository(db)

	// The auth and player closures read configuration through the server
	// so wizard updates are visible to them. srv is assigned below,
	// before any request can run.
	var srv *server.Server
	currentConfig := func() *shared.Config {
		if srv != nil {
			return srv.Config()
		}
		return config
	}

	auth := &spotifyAuth{config: currentConfig}
	players := func(token *oauth2.Token, persist func(*oauth2.Token)) server.Player {
		svc, err := services.NewSpotifyService(currentConfig().Credentials.Spotify.Map())
		if err != nil {
			r.logger.Error("failed to build player client", "error", err)
			return nil
		}
		svc.SetToken(token)
		if persist != nil {
			svc.OnTokenRefresh(persist)
		}
		return svc
	}

	srv, err = server.New(server.Opts{
		Config:     config,
		ConfigPath: configPath,
		Sessions:   sessions,
		Auth:       auth,
		Players:    players,
		Logger:     r.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go r.purgeSessions(ctx, sessions)

	if !config.Configured() {
		r.logger.Warn("setup incomplete, serving the wizard", "next", config.FirstIncompleteStep())
	}

	if cmd.Bool("open") {
		url := fmt.Sprintf("http://%s/", config.Server.Addr())
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("failed to open browser", "url", url, "error", err)
		}
	}

	return srv.ListenAndServe(ctx)
}

// purgeSessions deletes expired sessions at startup and on an interval.
func (r *Runner) purgeSessions(ctx context.Context, sessions *repositories.SessionRepository) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		if purged, err := sessions.PurgeExpired(); err != nil {
			r.logger.Warn("session purge failed", "error", err)
		} else if purged > 0 {
			r.logger.Info("purged expired sessions", "count", purged)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
