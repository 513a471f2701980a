// ABOUTME: Root cobra command and shared helpers for the coven-responder CLI
// ABOUTME: Resolves the config path, builds loggers and opens the store

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-responder/internal/chatconfig"
	"github.com/2389/coven-responder/internal/config"
	"github.com/2389/coven-responder/internal/responder"
	"github.com/2389/coven-responder/internal/store"
)

const banner = `
  ___ _____   _____ _ __    _ __ ___  ___ _ __   ___  _ __   __| | ___ _ __
 / __/ _ \ \ / / _ \ '_ \  | '__/ _ \/ __| '_ \ / _ \| '_ \ / _' |/ _ \ '__|
| (_| (_) \ V /  __/ | | | | | |  __/\__ \ |_) | (_) | | | | (_| |  __/ |
 \___\___/ \_/ \___|_| |_| |_|  \___||___/ .__/ \___/|_| |_|\__,_|\___|_|
                                         |_|
`

type rootOptions struct {
	configPath string
}

// NewRootCmd builds the coven-responder command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "coven-responder",
		Short:         "Pattern autoreplies and sticker echoes for group chats",
		Long:          "Watches chat messages, answers those matching per-chat patterns with a configurable probability, and echoes recently seen stickers back.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: $COVEN_RESPONDER_CONFIG or ~/.config/coven/responder.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newInitCmd(opts),
		newRulesCmd(opts),
		newChanceCmd(opts),
		newCapacityCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (o *rootOptions) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.DefaultPath()
}

func (o *rootOptions) load() (*config.Config, error) {
	path := o.path()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, nil
}

// openResponder opens the configured store and builds a responder over it.
// The caller closes the returned store.
func openResponder(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*responder.Responder, *store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}

	r, err := responder.New(cmd.Context(), st,
		responder.WithLogger(logger),
		responder.WithDefaults(chatconfig.Defaults{
			FireProbability: cfg.Responder.FireProbability(),
			RecencyCapacity: cfg.Responder.RecencyCapacity(),
		}),
	)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("loading responder: %w", err)
	}
	return r, st, nil
}

func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// quietLogger is used by the one-shot admin commands, which only report problems.
func quietLogger(w io.Writer) *slog.Logger {
	return setupLogger(w, "warn", "text")
}

func printInfo(w io.Writer, label, value string) {
	color.New(color.FgGreen).Fprint(w, "    ▶ ")
	fmt.Fprintf(w, "%-11s %s\n", label+":", value)
}
