package cmd

import (
	"context"

	"github.com/dcallahan11/resybot-open/internal/config"
	"github.com/dcallahan11/resybot-open/internal/db"
	"github.com/dcallahan11/resybot-open/internal/migrate"
	"github.com/dcallahan11/resybot-open/internal/store"
)

// openRepo is the shared bootstrap for one-shot CLI commands: env config,
// pool, migrations, repo.
func openRepo(ctx context.Context) (*store.Repo, *db.DB, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, nil, err
	}
	return store.NewRepo(d), d, nil
}
