// Command feeds manages feed subscriptions stored in a vault and serves
// them over HTTP and Telegram.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"feeds_reader/internal/bot"
	"feeds_reader/internal/config"
	"feeds_reader/internal/fetcher"
	"feeds_reader/internal/persist"
	"feeds_reader/internal/session"
	"feeds_reader/internal/vault"
)

var (
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "feeds",
	Short: "Feed reader storage and update service",
	Long: `feeds keeps RSS and Atom subscriptions in a vault folder (or a SQLite
vault) and updates them periodically.

Example usage:
  feeds serve                          # Update loop, HTTP API and Telegram bot
  feeds add https://go.dev/blog/feed.atom "Go Blog"
  feeds update                         # Update every feed once
  feeds search "kubernetes -job"       # Search stored items`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "feeds: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	c, err := config.Load()
	if err != nil {
		return err
	}
	cfg = c
	logger = newLogger(cfg.LogLevel)
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      lvl,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}

// app bundles the storage stack shared by every command.
type app struct {
	vault   vault.Vault
	session *session.Session
	closers []func() error
}

type appOptions struct {
	notifier  persist.Notifier
	announcer session.Announcer
}

func openVault(ctx context.Context) (vault.Vault, func() error, error) {
	switch cfg.Backend {
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create data directory: %w", err)
		}
		v, err := vault.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return v, v.Close, nil
	default:
		v, err := vault.NewDir(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return v, func() error { return nil }, nil
	}
}

func openApp(ctx context.Context, opts appOptions) (*app, error) {
	if opts.notifier == nil {
		opts.notifier = bot.LogNotifier{Log: logger}
	}

	v, closeVault, err := openVault(ctx)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	store := persist.New(v, persist.Options{
		Base:          cfg.StoreBase,
		MaxChunkBytes: cfg.MaxChunkBytes,
		Notifier:      opts.notifier,
	}, logger)

	f := fetcher.New(http.DefaultClient)
	f.SetTimeout(cfg.FetchTimeout)

	sess := session.New(store, f, session.Options{
		SaveDebounce:     cfg.SaveDebounce,
		FetchConcurrency: cfg.FetchConcurrency,
		FetchRate:        cfg.FetchRate,
		Notifier:         opts.notifier,
		Announcer:        opts.announcer,
	}, logger)
	if err := sess.Open(ctx); err != nil {
		_ = closeVault()
		return nil, fmt.Errorf("open session: %w", err)
	}

	return &app{vault: v, session: sess, closers: []func() error{closeVault}}, nil
}

// close flushes pending writes and releases the vault.
func (a *app) close() error {
	// The command context may already be cancelled.
	err := a.session.Close(context.Background())
	for _, c := range a.closers {
		err = errors.Join(err, c())
	}
	return err
}

// withApp opens the storage stack, runs fn and flushes on the way out.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	a, err := openApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.close())
	}()
	return fn(ctx, a)
}
