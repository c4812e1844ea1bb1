package main

import (
	"context"
	"fmt"

	"github.com/spotipi/spotipi/internal/repositories"
	"github.com/spotipi/spotipi/internal/shared"
	"github.com/urfave/cli/v3"
)

// SessionsPurge deletes expired browser sessions from the store.
func (r *Runner) SessionsPurge(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	sessions := repositories.NewSessionRepository(db)
	purged, err := sessions.PurgeExpired()
	if err != nil {
		return fmt.Errorf("failed to purge sessions: %w", err)
	}

	r.writePlain("purged %d expired sessions\n", purged)
	return nil
}
