// package server contains the web front end: the player views, the OAuth
// login flow and the setup wizard.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/spotipi/spotipi/internal/repositories"
	"github.com/spotipi/spotipi/internal/services"
	"github.com/spotipi/spotipi/internal/shared"
	"github.com/spotipi/spotipi/internal/sysconf"
	"golang.org/x/oauth2"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Authenticator starts and completes the OAuth authorization-code flow.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Player is the session-scoped client the handlers drive: the playback
// operations plus access to a token fresh enough for the web playback SDK.
type Player interface {
	services.Player
	CurrentToken(ctx context.Context) (*oauth2.Token, error)
}

// PlayerFactory builds a [Player] around a session's token. persist is
// invoked with every refreshed token so the session row stays current.
type PlayerFactory func(token *oauth2.Token, persist func(*oauth2.Token)) Player

// Opts contains the collaborators a [Server] needs.
type Opts struct {
	Config     *shared.Config
	ConfigPath string
	Sessions   *repositories.SessionRepository
	Auth       Authenticator
	Players    PlayerFactory
	Logger     *log.Logger
}

// Server is the kiosk web front end. The configuration it holds is loaded
// once at startup; only the wizard mutates it, and every mutation is
// written back to the config file before taking effect.
type Server struct {
	mu         sync.RWMutex
	config     *shared.Config
	configPath string

	sessions *repositories.SessionRepository
	auth     Authenticator
	players  PlayerFactory
	logger   *log.Logger
	router   *Router
}

// New assembles a Server and registers its route table. Registration
// fails on malformed or duplicate routes, so a bad table is caught at
// startup rather than at request time.
func New(opts Opts) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: config is required", shared.ErrInvalidArgument)
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("%w: session repository is required", shared.ErrInvalidArgument)
	}
	if opts.Players == nil {
		return nil, fmt.Errorf("%w: player factory is required", shared.ErrInvalidArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	s := &Server{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		sessions:   opts.Sessions,
		auth:       opts.Auth,
		players:    opts.Players,
		logger:     opts.Logger,
		router:     NewRouter(),
	}

	s.router.Use(s.logRequests, s.setupGate)

	for _, rt := range s.routes() {
		if err := s.router.Handle(rt.method, rt.path, rt.handler); err != nil {
			return nil, fmt.Errorf("failed to register %s %s: %w", rt.method, rt.path, err)
		}
	}

	return s, nil
}

// route is one entry of the explicit dispatch table.
type route struct {
	method  string
	path    string
	handler http.HandlerFunc
}

func (s *Server) routes() []route {
	return []route{
		{http.MethodGet, "/", s.handleIndex},
		{http.MethodGet, "/status", s.handleStatus},
		{http.MethodPost, "/play", s.handlePlay},
		{http.MethodPost, "/pause", s.handlePause},
		{http.MethodPost, "/next", s.handleNext},
		{http.MethodPost, "/previous", s.handlePrevious},
		{http.MethodGet, "/search", s.handleSearch},
		{http.MethodPost, "/queue", s.handleQueue},
		{http.MethodGet, "/devices", s.handleDevices},
		{http.MethodPost, "/transfer", s.handleTransfer},
		{http.MethodGet, "/login", s.handleLogin},
		{http.MethodGet, "/logout", s.handleLogout},
		{http.MethodGet, "/callback", s.handleCallback},
		{http.MethodGet, "/token", s.handleToken},
		{http.MethodGet, shared.StepWiFi, s.handleWizardWiFiForm},
		{http.MethodPost, shared.StepWiFi, s.handleWizardWiFi},
		{http.MethodGet, shared.StepSpotify, s.handleWizardSpotifyForm},
		{http.MethodPost, shared.StepSpotify, s.handleWizardSpotify},
		{http.MethodGet, shared.StepAudio, s.handleWizardAudioForm},
		{http.MethodPost, shared.StepAudio, s.handleWizardAudio},
		{http.MethodGet, "/wizard/done", s.handleWizardDone},
		{http.MethodGet, "/wizard/scan", s.handleWizardScan},
	}
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs the server on the configured address until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Config().Server.Addr(),
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("listening", "addr", srv.Addr)

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Config returns the current configuration snapshot.
func (s *Server) Config() *shared.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// saveConfig persists an updated configuration and installs it as the
// current snapshot. Wizard writes are last-write-wins.
func (s *Server) saveConfig(config *shared.Config) error {
	if s.configPath != "" {
		if err := shared.SaveConfig(s.configPath, config); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.config = config
	s.mu.Unlock()
	return nil
}

// audioWriter returns the boot-config writer for the configured path.
func (s *Server) audioWriter() sysconf.Audio {
	return sysconf.Audio{Path: s.Config().System.BootConfig}
}

// wifiWriter returns the supplicant writer for the configured path.
func (s *Server) wifiWriter() sysconf.Wifi {
	return sysconf.Wifi{Path: s.Config().System.WPASupplicant}
}
