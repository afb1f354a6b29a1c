package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/db"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.DB.Driver == "memory" {
				return errors.New("migrate needs db.driver=postgres")
			}

			conn, err := db.Open(cfg.DB)
			if err != nil {
				return err
			}
			defer db.Close(conn)
			if err := db.Ping(conn); err != nil {
				return err
			}
			if err := db.AutoMigrate(conn); err != nil {
				return err
			}
			log.Info("schema migrated", zap.String("driver", "postgres"))
			return nil
		},
	}
}
