package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpHandler "storefront-notifier/internal/adapter/http/handler"
	"storefront-notifier/internal/adapter/http/middleware"

	"github.com/spf13/cobra"
)

func serveCmd(configPath *string) *cobra.Command {
	var specPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the operator HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Auth.Secret == "" {
				return errors.New("auth.secret is required to serve the operator API")
			}

			if specBytes, err := os.ReadFile(specPath); err == nil {
				httpHandler.SetSwaggerSpec(specBytes)
				a.log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
			} else {
				a.log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
			}

			router := httpHandler.SetupRouter(httpHandler.RouterDeps{
				SchedulerSvc:   a.scheduler,
				DispatcherSvc:  a.dispatcher,
				QuerySvc:       a.query,
				TokenSvc:       a.tokens,
				RateLimitStore: a.rateLimits,
				BatchRateLimit: middleware.RateLimitRule{
					Limit:  int64(a.cfg.Server.BatchRateLimit),
					Window: a.cfg.Server.BatchRateWindow,
				},
				Limits: httpHandler.BatchLimits{
					Schedule: a.cfg.Pipeline.ScheduleLimit,
					Deliver:  a.cfg.Pipeline.DeliverLimit,
				},
				HealthCheckers: a.health,
				Mode:           a.cfg.Server.Mode,
				Logger:         a.log,
			})

			srv := &http.Server{
				Addr:              a.cfg.Server.Addr(),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.log.Info().Msg("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Error().Err(err).Msg("Server forced to shutdown")
			}
			a.log.Info().Msg("Server exited")
			return nil
		},
	}
	cmd.Flags().StringVar(&specPath, "openapi", "docs/api/openapi.yaml", "OpenAPI document served at /swagger/spec")
	return cmd
}
