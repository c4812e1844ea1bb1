package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Wizard step paths, ordered. A request made while configuration is
// incomplete is redirected to the first step whose answer is missing.
const (
	StepWiFi    = "/wizard/wifi"
	StepSpotify = "/wizard/spotify"
	StepAudio   = "/wizard/audio"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	App         AppConfig         `toml:"app"`
	Credentials CredentialsConfig `toml:"credentials"`
	Audio       AudioConfig       `toml:"audio"`
	WiFi        WiFiConfig        `toml:"wifi"`
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	System      SystemConfig      `toml:"system"`
}

// AppConfig contains application-wide settings.
type AppConfig struct {
	SecretKey string `toml:"secret_key"`
	Debug     bool   `toml:"debug"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Complete reports whether all credentials required for the OAuth flow are present.
func (s SpotifyConfig) Complete() bool {
	return s.ClientID != "" && s.ClientSecret != "" && s.RedirectURI != ""
}

// Map converts the credentials to the map form consumed by service constructors.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// AudioConfig records the wizard's audio-output selection. Output is a key
// from the sysconf audio catalog; I2SOverlay holds the device-tree overlay
// name when Output is the generic "i2s" option.
type AudioConfig struct {
	Output     string `toml:"output"`
	I2SOverlay string `toml:"i2s_overlay"`
}

// WiFiConfig records the wizard's WiFi step. The passphrase is written to
// the supplicant file only and never stored here.
type WiFiConfig struct {
	Done bool   `toml:"done"`
	SSID string `toml:"ssid"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SystemConfig points at the OS-level files the wizard rewrites. Paths are
// configurable so tests can target a temp directory.
type SystemConfig struct {
	BootConfig    string `toml:"boot_config"`
	WPASupplicant string `toml:"wpa_supplicant"`
}

// FirstIncompleteStep returns the wizard path of the first step that has
// not been answered, or "" when the WiFi/Spotify/audio triad is complete.
func (c *Config) FirstIncompleteStep() string {
	if !c.WiFi.Done {
		return StepWiFi
	}
	if !c.Credentials.Spotify.Complete() {
		return StepSpotify
	}
	if c.Audio.Output == "" {
		return StepAudio
	}
	return ""
}

// Configured reports whether the setup wizard has been completed.
func (c *Config) Configured() bool {
	return c.FirstIncompleteStep() == ""
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// SaveConfig writes the configuration to path with 0600 permissions.
//
// The file is written to a temporary sibling and renamed into place so a
// failure mid-write never leaves a truncated config behind.
func SaveConfig(path string, config *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
