package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/xraph/factor"
	"github.com/xraph/factor/api"
	"github.com/xraph/factor/scheduler"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the marketplace HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Address = addr
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := openStore(ctx, cfg.Store, logger)
			if err != nil {
				return err
			}
			pub, err := openEvents(ctx, cfg.Events, logger)
			if err != nil {
				_ = st.Close()
				return err
			}

			opts := []factor.Option{factor.WithLogger(logger)}
			for _, p := range plugins(pub, cfg.Events, logger) {
				opts = append(opts, factor.WithPlugin(p))
			}
			eng := factor.New(st, opts...)
			if err := eng.Start(ctx); err != nil {
				_ = eng.Stop(context.Background())
				return err
			}

			var watcher *scheduler.Watcher
			if !cfg.Scheduler.Disabled {
				watcher = scheduler.New(eng,
					scheduler.WithInterval(cfg.Scheduler.DueScanInterval),
					scheduler.WithLogger(logger),
				)
				if err := watcher.Start(ctx); err != nil {
					_ = eng.Stop(context.Background())
					return err
				}
			}

			srv := &http.Server{
				Addr:              cfg.Server.Address,
				Handler:           api.New(eng, api.WithLogger(logger), api.WithBasePath(cfg.Server.BasePath)).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("http server listening", "address", srv.Addr, "base_path", cfg.Server.BasePath)
				serveErr <- srv.ListenAndServe()
			}()

			select {
			case err = <-serveErr:
			case <-ctx.Done():
				logger.Info("shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.Error("http shutdown", "error", shutdownErr)
			}
			if watcher != nil {
				if stopErr := watcher.Stop(); stopErr != nil {
					logger.Error("due watcher shutdown", "error", stopErr)
				}
			}
			if stopErr := eng.Stop(shutdownCtx); stopErr != nil {
				logger.Error("engine shutdown", "error", stopErr)
			}

			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address, overrides server.address")
	return cmd
}
