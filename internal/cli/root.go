// Package cli implements floorctl, the operator tool for a casino floor
// deployment.
package cli

import (
	"context"
	"database/sql"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/casino-floor/internal/config"
	"github.com/iliyamo/casino-floor/internal/database"
	"github.com/iliyamo/casino-floor/internal/utils"
)

// env is what every subcommand shares once the root has run.
type env struct {
	cfg config.Config
	log *logrus.Logger
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	e := &env{}
	rootCmd := &cobra.Command{
		Use:   "floorctl",
		Short: "Operator tool for the casino floor service",
		Long: `floorctl migrates the store, watches a casino floor from a terminal,
runs the raw point ledger consumer and issues staff tokens.

Configuration comes from the same environment variables (and .env file)
as the API server.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.log = utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
			e.log.SetOutput(cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newMigrateCmd(e))
	rootCmd.AddCommand(newWatchCmd(e))
	rootCmd.AddCommand(newLedgerCmd(e))
	rootCmd.AddCommand(newTokenCmd(e))
	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// openDB connects and migrates so every command sees the current schema.
func (e *env) openDB(ctx context.Context) (*sql.DB, database.Dialect, []string, error) {
	d, err := e.cfg.Dialect()
	if err != nil {
		return nil, "", nil, err
	}
	db, err := database.Open(ctx, d, e.cfg.DSN())
	if err != nil {
		return nil, "", nil, err
	}
	applied, err := database.Migrate(ctx, db, d)
	if err != nil {
		_ = db.Close()
		return nil, "", nil, err
	}
	return db, d, applied, nil
}
