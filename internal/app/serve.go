package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/newspulse/internal/logger"
	"github.com/deusflow/newspulse/internal/server"
	"github.com/deusflow/newspulse/internal/watcher"
)

var flagNoWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with background refresh",
	Long: `Serve the JSON API and /metrics, refresh the feeds every sync interval and
reload sources.yaml when it changes on disk. Stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return withApp(cmd, func(_ context.Context, a *App) error {
			return a.Serve(ctx, !flagNoWatch)
		})
	},
}

func init() {
	serveCmd.Flags().BoolVar(&flagNoWatch, "no-watch", false, "do not watch the sources file for changes")
}

// Serve runs the API server, the periodic refresher and optionally the
// sources watcher until ctx is cancelled or one of them fails.
func (a *App) Serve(ctx context.Context, watch bool) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := server.New(a.News, a.Config.Server.Addr)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return a.refreshLoop(ctx) })
	if watch {
		w := watcher.New(a.Config.Feeds.SourcesPath, func(ctx context.Context) {
			if err := a.News.ReloadSources(ctx); err != nil {
				logger.Warn("Failed to reload sources", "error", err)
			}
		})
		g.Go(func() error { return w.Run(ctx) })
	}

	err := g.Wait()
	logger.Info("Server stopped")
	return err
}

func (a *App) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.Config.Feeds.SyncInterval)
	defer ticker.Stop()

	a.refreshOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.refreshOnce(ctx)
		}
	}
}

func (a *App) refreshOnce(ctx context.Context) {
	if _, err := a.News.Refresh(ctx, false); err != nil && ctx.Err() == nil {
		logger.Error("Background refresh failed", "error", err)
	}
}
