package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/api"
	"github.com/sells-group/siteselect/internal/metrics"
)

var (
	servePort int
	serveSeed bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the search and account API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if serveSeed {
			if _, err := env.ETL.Seed(ctx); err != nil {
				return err
			}
		}

		srvAPI := api.New(env.Store, env.Search, env.Ref, env.Auth, env.ETL,
			api.WithMetrics(env.Metrics, env.Registry),
			api.WithCORSOrigins(cfg.Server.CORSOrigins),
		)

		go metrics.NewCollector(env.Store, env.Metrics).
			Run(ctx, time.Duration(cfg.Server.MetricsIntervalSec)*time.Second)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srvAPI.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Bool("ai_available", env.Search.AIAvailable()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveSeed, "seed", false, "reseed reference areas before serving")
	rootCmd.AddCommand(serveCmd)
}
