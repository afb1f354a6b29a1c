package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/sweeper"
)

func newSweepCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry sweep pass and print the transitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			items, sweepErr := a.sweeper.Sweep(cmd.Context())
			if items == nil {
				items = []sweeper.Transition{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(items); err != nil {
				return err
			}
			if sweepErr != nil {
				log.Warn("sweep finished with errors", zap.Error(sweepErr))
			}
			return sweepErr
		},
	}
}
