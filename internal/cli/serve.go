package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/lightmode/internal/circuit"
	"github.com/roach88/lightmode/internal/config"
	"github.com/roach88/lightmode/internal/demo"
	"github.com/roach88/lightmode/internal/host"
	"github.com/roach88/lightmode/internal/lifecycle"
	"github.com/roach88/lightmode/internal/store"
	"github.com/roach88/lightmode/internal/transport"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	Listen     string
	Database   string

	// Listener overrides Listen (for testing).
	Listener net.Listener

	// Ready, if set, is called once the server accepts connections (for testing).
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo counter over long poll",
		Long: `Start the HTTP server hosting circuits for the demo counter.

Settings come from the built-in defaults, then the --config file, then flags.
Circuit lifecycle events are journaled to the SQLite database unless --db is
set to the empty string. Circuits left open by a previous run are closed in
the journal at startup.

Example:
  lightmode serve
  lightmode serve --config ./lightmode.yaml --listen :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(opts, cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runServe(ctx, opts, cfg, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal database path (overrides config; empty disables)")

	return cmd
}

func loadServeConfig(opts *ServeOptions, cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = opts.Listen
	}
	if cmd.Flags().Changed("db") {
		cfg.Database = opts.Database
	}
	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

func runServe(parent context.Context, opts *ServeOptions, cfg config.Config, cmd *cobra.Command) error {
	logger := configureLogging(opts.RootOptions)

	var regOpts []circuit.RegistryOption
	regOpts = append(regOpts,
		circuit.WithLogger(logger),
		circuit.WithMaximumCircuitCount(cfg.Lifecycle.MaximumCircuitCount))

	if cfg.Database != "" {
		slog.Info("opening journal", "path", cfg.Database)
		st, err := store.Open(cfg.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		closed, err := st.CloseOrphans(parent, time.Now())
		if err != nil {
			return WrapExitError(ExitFailure, "failed to close orphaned circuits", err)
		}
		if closed > 0 {
			slog.Info("closed circuits left open by a previous run", "count", closed)
		}
		regOpts = append(regOpts, circuit.WithJournal(st))
	}

	reg := circuit.NewRegistry(demo.NewCounter, regOpts...)
	mgr, err := lifecycle.New(reg, cfg.Lifecycle, lifecycle.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid lifecycle options", err)
	}

	handlerOpts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithMaxBodyBytes(cfg.MaxBodyBytes),
	}
	if cfg.RateLimit.Enabled() {
		handlerOpts = append(handlerOpts, transport.WithRateLimiter(
			transport.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)))
	}
	srv := &http.Server{
		Handler:           transport.NewHandler(host.New(reg, host.WithLogger(logger)), handlerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln := opts.Listener
	if ln == nil {
		ln, err = net.Listen("tcp", cfg.Listen)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen", err)
		}
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		return mgr.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		// Open long-polls only return once their circuit closes, so the
		// registry goes first. The second pass catches circuits started
		// while the listener drained.
		reg.Close(shutdownCtx)
		err := srv.Shutdown(shutdownCtx)
		reg.Close(shutdownCtx)
		return err
	})

	addr := ln.Addr().String()
	slog.Info("server listening", "addr", addr, "journal", cfg.Database != "")
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", addr)
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}
