package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"feeds_reader/internal/api"
	"feeds_reader/internal/bot"
	"feeds_reader/internal/scheduler"
	"feeds_reader/internal/session"
)

var serveNoHTTP bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the update loop, the HTTP API and the Telegram bot",
	Long: `Run the periodic update loop until interrupted. The HTTP API listens on
FEEDS_HTTP_ADDR. The Telegram bot starts when TELEGRAM_BOT_TOKEN is set;
notices go to TELEGRAM_CHAT_ID when it is set too, and to the log otherwise.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoHTTP, "no-http", false, "do not start the HTTP API")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var (
		tg   bot.API
		opts appOptions
	)
	if cfg.TelegramBotToken != "" {
		botAPI, err := bot.NewAPI(cfg.TelegramBotToken)
		if err != nil {
			return fmt.Errorf("create telegram client: %w", err)
		}
		tg = botAPI
		if cfg.TelegramEnabled() {
			n := bot.NewNotifier(tg, cfg.TelegramChatID, logger)
			opts.notifier = n
			if cfg.NotifyNewItems {
				opts.announcer = n
			}
		}
	}
	if opts.announcer == nil && cfg.NotifyNewItems {
		opts.announcer = bot.LogNotifier{Log: logger}
	}

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.New(a.session, cfg.UpdateInterval, logger).Run(gctx)
		return nil
	})
	if !serveNoHTTP {
		g.Go(func() error {
			return api.New(a.session, logger).ListenAndServe(gctx, cfg.HTTPAddr)
		})
	}
	if tg != nil {
		g.Go(func() error {
			bot.New(tg, a.session, cfg, logger).Run(gctx)
			return nil
		})
	}

	logger.Info("serving",
		"backend", cfg.Backend,
		"interval", cfg.UpdateInterval,
		"http", !serveNoHTTP,
		"telegram", tg != nil,
	)
	err = g.Wait()
	logger.Info("stopped")
	if cerr := a.close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Compile-time checks for the session wiring above.
var (
	_ api.Session       = (*session.Session)(nil)
	_ bot.Session       = (*session.Session)(nil)
	_ scheduler.Updater = (*session.Session)(nil)
)
