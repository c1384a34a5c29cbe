package migrate

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/memory-journal/internal/config"
	registrymigrate "github.com/chirino/memory-journal/internal/registry/migrate"
	registrystore "github.com/chirino/memory-journal/internal/registry/store"
	"github.com/urfave/cli/v3"

	// Import plugins to trigger init() registration of their migrators.
	// Store plugins register their own migrators alongside their primary interface.
	_ "github.com/chirino/memory-journal/internal/plugin/store/postgres"
	_ "github.com/chirino/memory-journal/internal/plugin/store/sqlite"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	defaults := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-url",
				Sources: cli.EnvVars("MEMORY_JOURNAL_DB_URL"),
				Usage:   "Database connection URL (a file name for sqlite)",
				Value:   defaults.DBURL,
			},
			&cli.StringFlag{
				Name:    "db-kind",
				Sources: cli.EnvVars("MEMORY_JOURNAL_DB_KIND"),
				Usage:   "Store backend (" + strings.Join(registrystore.Names(), "|") + ")",
				Value:   defaults.DatastoreType,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.DatastoreType = cmd.String("db-kind")
			ctx = registrymigrate.WithForced(config.WithContext(ctx, &cfg))

			log.Info("Running migrations...", "db", cfg.DatastoreType)
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
