package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/gitmem/internal/http"
	mcpserver "github.com/fyrsmithlabs/gitmem/internal/mcp"
	"github.com/fyrsmithlabs/gitmem/internal/watch"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		host       string
		port       int
		watchNotes bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the memory engine over HTTP until interrupted. Prometheus metrics are
exposed on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				cfg := a.cfg.HTTP
				if cmd.Flags().Changed("host") {
					cfg.Host = host
				}
				if cmd.Flags().Changed("port") {
					cfg.Port = port
				}
				srv, err := httpserver.NewServer(a.svc, a.logger, &httpserver.Config{Host: cfg.Host, Port: cfg.Port})
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("watch") {
					a.cfg.Ledger.Watch = watchNotes
				}
				stop, err := a.startNotesSync(cmd.Context())
				if err != nil {
					return err
				}
				defer stop()
				return serveUntilDone(cmd.Context(), srv, cfg.ShutdownTimeout.Duration(), a.logger)
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default http.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default http.port)")
	cmd.Flags().BoolVar(&watchNotes, "watch", false, "re-sync when the notes ref moves (default ledger.watch)")
	return cmd
}

// startNotesSync follows the notes ref when ledger.watch is set. The returned
// func stops the watcher and waits for an in-flight sync.
func (a *app) startNotesSync(ctx context.Context) (func(), error) {
	if !a.cfg.Ledger.Watch {
		return func() {}, nil
	}
	w, err := watch.New(watch.Config{
		RepoPath: a.cfg.Ledger.RepoPath,
		Ref:      a.cfg.Ledger.Namespace,
		Debounce: a.cfg.Ledger.WatchDebounce.Duration(),
		Logger:   a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("notes watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := w.Start(ctx); err != nil {
		cancel()
		w.Stop()
		return nil, fmt.Errorf("notes watcher: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		watch.SyncOnChange(ctx, w.Events(), a.svc.Reconcile, a.logger)
	}()
	return func() {
		cancel()
		w.Stop()
		<-done
	}, nil
}

type httpServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down within timeout.
func serveUntilDone(ctx context.Context, srv httpServer, timeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func newMCPCmd(opts *globalOptions) *cobra.Command {
	var watchNotes bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory tools over MCP on stdio",
		Long: `Run an MCP server on stdin/stdout exposing memory_capture, memory_search,
memory_get and memory_sync. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				srv, err := mcpserver.NewServer(&mcpserver.Config{
					Name:    "gitmem",
					Version: version,
					Logger:  a.logger,
				}, a.svc)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("watch") {
					a.cfg.Ledger.Watch = watchNotes
				}
				stop, err := a.startNotesSync(cmd.Context())
				if err != nil {
					return err
				}
				defer stop()
				return srv.Run(cmd.Context())
			})
		},
	}
	cmd.Flags().BoolVar(&watchNotes, "watch", false, "re-sync when the notes ref moves (default ledger.watch)")
	return cmd
}
