package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spotipi/spotipi/internal/shared"
	"github.com/urfave/cli/v3"
)

// ConfigShow prints the effective configuration with secrets redacted.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	view := map[string]any{
		"app": map[string]any{
			"secret_key": redact(config.App.SecretKey),
			"debug":      config.App.Debug,
		},
		"credentials": map[string]any{
			"spotify": map[string]any{
				"client_id":     config.Credentials.Spotify.ClientID,
				"client_secret": redact(config.Credentials.Spotify.ClientSecret),
				"redirect_uri":  config.Credentials.Spotify.RedirectURI,
			},
		},
		"audio": map[string]any{
			"output":      config.Audio.Output,
			"i2s_overlay": config.Audio.I2SOverlay,
		},
		"wifi": map[string]any{
			"done": config.WiFi.Done,
			"ssid": config.WiFi.SSID,
		},
		"server": map[string]any{
			"host": config.Server.Host,
			"port": config.Server.Port,
		},
		"database": map[string]any{
			"path": config.Database.Path,
		},
		"system": map[string]any{
			"boot_config":    config.System.BootConfig,
			"wpa_supplicant": config.System.WPASupplicant,
		},
		"configured": config.Configured(),
	}

	return r.writeJSON(view, cmd.Bool("pretty"))
}

// ConfigInit creates a configuration file from the embedded template.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%w: %s already exists", shared.ErrInvalidArgument, configPath)
	}

	if err := shared.CreateConfigFile(configPath); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	r.logger.Info("config file created", "path", configPath)
	return nil
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	return "[redacted]"
}
