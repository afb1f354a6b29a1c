package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/config"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/logger"
)

type rootOptions struct {
	ConfigPath string
	EnvOnly    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "aggregator",
		Short:         "Paynode order matching and settlement engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultPath := os.Getenv("PAYNODE_CONFIG")
	if defaultPath == "" {
		defaultPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("PAYNODE_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", defaultPath, "path to the YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.EnvOnly, "env-only", envOnly, "read configuration from PAYNODE_* variables only")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	return cmd
}

func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.ConfigPath, o.EnvOnly)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}
