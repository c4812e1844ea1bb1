package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spotipi/spotipi/internal/models"
	"github.com/spotipi/spotipi/internal/repositories"
	"github.com/spotipi/spotipi/internal/shared"
	tu "github.com/spotipi/spotipi/internal/testing"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// run executes one CLI invocation against a fresh Runner and returns its
// captured output.
func run(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(nil), Output: output})
	cmd := &cli.Command{Name: "spotipi", Commands: runner.register()}

	err := cmd.Run(context.Background(), append([]string{"spotipi"}, args...))
	return output, err
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}

			runner := NewRunner(RunnerOpts{Logger: logger, Output: output})

			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.output != os.Stdout {
				t.Error("expected stdout as default output")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writeJSON(map[string]string{"key": "value"}, true)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)

			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)

			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			err := runner.writePlain("hello %s", "world")

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")

			if err == nil {
				t.Fatal("expected error from failing writer")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}

		for _, want := range []string{"serve", "setup", "config", "sessions", "now", "search", "devices"} {
			if !names[want] {
				t.Errorf("expected %s command registered", want)
			}
		}
	})

	t.Run("loadConfig", func(t *testing.T) {
		t.Run("missing file falls back to defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(nil)})

			config := runner.loadConfig(filepath.Join(t.TempDir(), "missing.toml"))

			if config == nil {
				t.Fatal("expected default config")
			}
			if config.Server.Port != shared.DefaultConfig().Server.Port {
				t.Errorf("expected default port, got %d", config.Server.Port)
			}
		})

		t.Run("reads existing file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			saved := shared.DefaultConfig()
			saved.Server.Port = 9999
			if err := shared.SaveConfig(path, saved); err != nil {
				t.Fatalf("failed to save config: %v", err)
			}

			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(nil)})
			config := runner.loadConfig(path)

			if config.Server.Port != 9999 {
				t.Errorf("expected saved port, got %d", config.Server.Port)
			}
		})

		t.Run("malformed file falls back to defaults", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("not [valid toml"), 0600); err != nil {
				t.Fatalf("failed to write file: %v", err)
			}

			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(nil)})
			config := runner.loadConfig(path)

			if config.Server.Port != shared.DefaultConfig().Server.Port {
				t.Errorf("expected default port, got %d", config.Server.Port)
			}
		})
	})
}

func TestConfigCommands(t *testing.T) {
	t.Run("init creates config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")

		_, err := run(t, "config", "init", "--config", path)

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)

		config, err := shared.LoadConfig(path)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}
		if config.Configured() {
			t.Error("expected fresh config to be unconfigured")
		}
	})

	t.Run("init refuses to overwrite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("# existing\n"), 0600); err != nil {
			t.Fatalf("failed to seed file: %v", err)
		}

		_, err := run(t, "config", "init", "--config", path)

		if err == nil {
			t.Fatal("expected error for existing file")
		}
		if tu.MustReadFile(t, path) != "# existing\n" {
			t.Error("expected existing file untouched")
		}
	})

	t.Run("show redacts secrets", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		config := shared.DefaultConfig()
		config.App.SecretKey = "super-secret-key"
		config.Credentials.Spotify.ClientID = "public-id"
		config.Credentials.Spotify.ClientSecret = "hidden-secret"
		if err := shared.SaveConfig(path, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		output, err := run(t, "config", "show", "--config", path)

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		result := output.String()
		if strings.Contains(result, "super-secret-key") || strings.Contains(result, "hidden-secret") {
			t.Errorf("expected secrets redacted, got %s", result)
		}
		if !strings.Contains(result, "[redacted]") {
			t.Error("expected redaction marker in output")
		}
		if !strings.Contains(result, "public-id") {
			t.Error("expected client id in clear")
		}
	})

	t.Run("show works without config file", func(t *testing.T) {
		output, err := run(t, "config", "show", "--config", filepath.Join(t.TempDir(), "missing.toml"))

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), `"configured"`) {
			t.Errorf("expected configured field, got %s", output.String())
		}
	})
}

func TestSessionsCommands(t *testing.T) {
	t.Run("purge deletes expired sessions", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "config.toml")
		config := shared.DefaultConfig()
		config.Database.Path = filepath.Join(dir, "spotipi.db")
		if err := shared.SaveConfig(configPath, config); err != nil {
			t.Fatalf("failed to save config: %v", err)
		}

		db, err := shared.NewDatabase(config.Database.Path)
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if err := shared.RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		repo := repositories.NewSessionRepository(db)
		stale := models.NewSession(-time.Minute)
		stale.SetCreatedAt(time.Now().Add(-2 * time.Minute))
		if err := stale.SetToken(&oauth2.Token{AccessToken: "access"}); err != nil {
			t.Fatalf("failed to set token: %v", err)
		}
		if err := repo.Create(stale); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		db.Close()

		output, err := run(t, "sessions", "purge", "--config", configPath)

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "purged 1 expired sessions") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})
}
