package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"arenakiosk/internal/app"
	"arenakiosk/libs/logging"
)

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the kiosk client until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Encoding)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				logger.Error("failed to init kiosk client", zap.Error(err))
				return err
			}
			defer application.Close()

			if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kiosk client stopped with error", zap.Error(err))
				return err
			}
			logger.Info("kiosk client stopped")
			return nil
		},
	}
}
