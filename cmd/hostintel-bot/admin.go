package main

import (
	"context"
	"fmt"
	"time"

	"hostintel-bot/internal/catalog"
	"hostintel-bot/internal/dispatcher"
	"hostintel-bot/internal/transport/telegram"

	"github.com/spf13/cobra"
)

const adminTimeout = 30 * time.Second

func newSetWebhookCmd(load configLoader) *cobra.Command {
	var keepPending bool

	cmd := &cobra.Command{
		Use:   "set-webhook",
		Short: "Register telegram.webhook_url with the Bot API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Telegram.WebhookURL == "" {
				return fmt.Errorf("telegram.webhook_url is not set")
			}
			log := buildLogger(cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), adminTimeout)
			defer cancel()
			err = newTelegramClient(cfg, log).SetWebhook(ctx, telegram.WebhookOptions{
				URL:                cfg.Telegram.WebhookURL,
				SecretToken:        cfg.Telegram.WebhookSecret,
				DropPendingUpdates: !keepPending,
			})
			if err != nil {
				return err
			}
			log.Info("webhook registered", map[string]interface{}{
				"url":          cfg.Telegram.WebhookURL,
				"secretToken":  cfg.Telegram.WebhookSecret != "",
				"droppedQueue": !keepPending,
			})
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepPending, "keep-pending", false, "keep updates queued while no webhook was set")
	return cmd
}

func newDeleteWebhookCmd(load configLoader) *cobra.Command {
	var dropPending bool

	cmd := &cobra.Command{
		Use:   "delete-webhook",
		Short: "Remove the webhook so the bot can poll",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), adminTimeout)
			defer cancel()
			return newTelegramClient(cfg, buildLogger(cfg)).DeleteWebhook(ctx, dropPending)
		},
	}
	cmd.Flags().BoolVar(&dropPending, "drop-pending", false, "discard updates waiting for delivery")
	return cmd
}

func newSetCommandsCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "set-commands",
		Short: "Publish the command menu shown by chat clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := buildLogger(cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), adminTimeout)
			defer cancel()
			commands := botCommands()
			if err := newTelegramClient(cfg, log).SetMyCommands(ctx, commands); err != nil {
				return err
			}
			log.Info("bot commands published", map[string]interface{}{"count": len(commands)})
			return nil
		},
	}
}

func botCommands() []telegram.BotCommand {
	menu := dispatcher.Menu()
	out := make([]telegram.BotCommand, 0, len(menu))
	for _, m := range menu {
		out = append(out, telegram.BotCommand{Command: m.Command, Description: m.Description})
	}
	return out
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the embedded template catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the catalog, then list its categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range cat.Categories() {
				fmt.Fprintf(out, "%-16s %3d  %s\n", c.ID, len(cat.Templates(c.ID)), c.Label())
			}
			fmt.Fprintf(out, "%d templates OK\n", cat.Len())
			return nil
		},
	})
	return cmd
}
