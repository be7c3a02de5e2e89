package main

import (
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"mediaLending/internal/config"
	"mediaLending/internal/db"
)

type rootOptions struct {
	dbPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "lendingctl",
		Short:         "Operate the media lending service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (defaults to DB_PATH)")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newCreateAdminCmd(opts),
		newTokenCmd(opts),
		newReconcileCmd(opts),
		newSweepCmd(),
	)
	return cmd
}

// loadConfig reads the environment the same way the server does.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithDefaults()
	if err != nil {
		return nil, err
	}
	if cfg.IsProduction() {
		return config.Load()
	}
	return cfg, nil
}

func (o *rootOptions) open() (*config.Config, *sqlx.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	path := o.dbPath
	if path == "" {
		path = cfg.Database.Path
	}
	d, err := db.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, d, nil
}
