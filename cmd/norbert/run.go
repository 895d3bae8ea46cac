package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/norbert/pkg/app"
	"github.com/lk2023060901/norbert/pkg/logger"
)

type runConfig struct {
	noConsole bool
}

func newRunCmd() *cobra.Command {
	cfg := &runConfig{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect and serve chat modules until interrupted",
		Long: `Load the config, activate every module unit, connect and join the
configured channels. Type "reload" or "modules" on the console, any other
line exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.noConsole, "no-console", false, "do not read commands from stdin")

	return cmd
}

func runBot(ctx context.Context, rc *runConfig) error {
	cfg, err := app.LoadConfigFromFile(configFile)
	if err != nil {
		logger.NewConsoleLogger(logger.LevelError).Error("load config failed", logger.Err(err))
		return err
	}

	var opts []app.Option
	if !rc.noConsole {
		opts = append(opts, app.WithConsole(os.Stdin))
	}
	bot, err := app.New(cfg, opts...)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return bot.Run(ctx)
}
