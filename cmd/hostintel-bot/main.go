// cmd/hostintel-bot/main.go
package main

import (
	"fmt"
	"os"

	"hostintel-bot/internal/common/config"
	"hostintel-bot/internal/common/logger"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "hostintel-bot",
		Short:         "Telegram front end for host-intelligence searches",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (defaults to ./configs/config.yaml)")

	load := func() (*config.Config, error) {
		if configPath != "" {
			return config.LoadFromFile(configPath)
		}
		return config.Load()
	}

	root.AddCommand(
		newServeCmd(load),
		newSetWebhookCmd(load),
		newDeleteWebhookCmd(load),
		newSetCommandsCmd(load),
		newCatalogCmd(),
	)
	return root
}

type configLoader func() (*config.Config, error)

func buildLogger(cfg *config.Config) logger.Logger {
	zapLog := logger.NewWithFile(cfg.Logging.Level, cfg.Logging.Format, logger.FileOptions{
		Path:       cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	return logger.NewZapAdapter(zapLog).With(map[string]interface{}{
		"service": cfg.App.Name,
		"env":     cfg.App.Environment,
	})
}
