package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marketlens-ai/marketlens/internal/config"
	"github.com/marketlens-ai/marketlens/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore(s)

		if err := s.Migrate(ctx); err != nil {
			return err
		}

		zap.L().Info("migrations applied", zap.String("driver", driverName(cfg)))
		return nil
	},
}

func driverName(cfg *config.Config) string {
	if cfg.Store.Driver == "" {
		return "sqlite"
	}
	return cfg.Store.Driver
}

func closeStore(s store.Store) {
	if err := s.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
