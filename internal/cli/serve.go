// ABOUTME: serve command running the HTTP API and the Matrix bridge
// ABOUTME: Both share one responder and stop together on SIGINT/SIGTERM

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-responder/internal/api"
	"github.com/2389/coven-responder/internal/auth"
	"github.com/2389/coven-responder/internal/command"
	"github.com/2389/coven-responder/internal/config"
	"github.com/2389/coven-responder/internal/matrix"
	"github.com/2389/coven-responder/internal/responder"
)

var errNothingToServe = errors.New("nothing to serve: set server.http_addr or enable matrix")

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the responder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	out := cmd.OutOrStdout()
	color.New(color.FgCyan).Fprint(out, banner)

	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if cfg.Server.HTTPAddr == "" && !cfg.Matrix.Enabled {
		return errNothingToServe
	}

	logger := setupLogger(out, cfg.Logging.Level, cfg.Logging.Format)

	printInfo(out, "Config", opts.path())
	printInfo(out, "Database", cfg.Database.Path)
	if cfg.Server.HTTPAddr != "" {
		printInfo(out, "HTTP API", cfg.Server.HTTPAddr)
	}
	if cfg.Matrix.Enabled {
		printInfo(out, "Homeserver", cfg.Matrix.Homeserver)
		printInfo(out, "Username", cfg.Matrix.Username)
		if cfg.Matrix.RecoveryKey != "" {
			printInfo(out, "Encryption", "enabled")
		}
	}
	fmt.Fprintln(out)

	// All startup work respects the signal context
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	cmd.SetContext(ctx)

	core, st, err := openResponder(cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.HTTPAddr != "" {
		var verifier auth.TokenVerifier
		if cfg.Auth.JWTSecret != "" {
			v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
			if err != nil {
				return fmt.Errorf("configuring auth: %w", err)
			}
			verifier = v
		}
		server := api.New(core, verifier, logger)
		g.Go(func() error {
			return server.ListenAndServe(gctx, cfg.Server.HTTPAddr)
		})
	}

	if cfg.Matrix.Enabled {
		bridge, closeBridge, err := startBridge(gctx, cfg, core, logger)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		defer closeBridge()
		g.Go(func() error {
			return bridge.Run(gctx)
		})
	}

	logger.Info("coven-responder running")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("coven-responder stopped")
	return nil
}

// startBridge logs in to Matrix and sets up encryption when a recovery key
// is configured. The returned func releases the crypto store.
func startBridge(ctx context.Context, cfg *config.Config, core *responder.Responder, logger *slog.Logger) (*matrix.Bridge, func(), error) {
	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	commands := command.NewHandler(core, logger)
	bridge, err := matrix.NewBridge(matrix.Config{
		Homeserver:   cfg.Matrix.Homeserver,
		Username:     cfg.Matrix.Username,
		Password:     cfg.Matrix.Password,
		RecoveryKey:  cfg.Matrix.RecoveryKey,
		AllowedRooms: cfg.Matrix.AllowedRooms,
		DedupeTTL:    cfg.Matrix.DedupeTTL,
		DataDir:      dataDir,
	}, core, commands, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating bridge: %w", err)
	}

	// Login must happen before crypto setup
	if err := bridge.Login(ctx); err != nil {
		return nil, nil, fmt.Errorf("matrix login: %w", err)
	}

	if cfg.Matrix.RecoveryKey == "" {
		logger.Info("encryption disabled (no recovery key)")
		return bridge, func() {}, nil
	}

	enc, err := matrix.EnableEncryption(ctx, bridge.Client(), cfg.Matrix.RecoveryKey, dataDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("setting up encryption: %w", err)
	}
	return bridge, func() {
		if err := enc.Close(); err != nil {
			logger.Error("closing crypto store", "error", err)
		}
	}, nil
}
