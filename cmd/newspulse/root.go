package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deusflow/newspulse/internal/app"
	"github.com/deusflow/newspulse/internal/config"
	"github.com/deusflow/newspulse/internal/logger"
)

var (
	feedsPath   string
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:           "newspulse",
	Short:         "Entity-focused news search over RSS feeds and NewsAPI",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if feedsPath != "" {
			cfg.FeedsConfigPath = feedsPath
		}
		logger.Init(cfg.LogLevel, cfg.LogFormat)

		application, err = app.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to start: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			application.Close()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&feedsPath, "feeds", "", "feed registry YAML file (overrides FEEDS_CONFIG_PATH)")
	rootCmd.AddCommand(serveCmd, searchCmd, feedsCmd)
}
