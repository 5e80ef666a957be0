package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/rf24-gateway/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/rf24-gateway/internal/config"
	"github.com/taoyao-code/rf24-gateway/internal/logging"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long:  `Load configuration, open the radio and serve the HTTP API until SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := logging.InitLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			zap.ReplaceGlobals(logger)

			logger.Info("rf24d", zap.String("version", version), zap.String("commit", commit))
			return bootstrap.Run(cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default $RF24_CONFIG or ./configs/example.yaml)")

	return cmd
}
