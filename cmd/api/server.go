package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	connectcors "connectrpc.com/cors"
	"github.com/rs/cors"

	"github.com/FACorreiaa/bookkeeper/pkg/codec"
	"github.com/FACorreiaa/bookkeeper/pkg/config"
	"github.com/FACorreiaa/bookkeeper/pkg/interceptors"
	"github.com/FACorreiaa/bookkeeper/pkg/metrics"
)

// Run serves the API until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	if cfg.Observability.MetricsEnabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Observability.MetricsPort, logger); err != nil {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	if err := deps.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() { <-deps.Scheduler.Stop().Done() }()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// NewRouter mounts the RPC handlers behind the interceptor chain and CORS.
func NewRouter(deps *Dependencies) http.Handler {
	cfg := deps.Config

	opts := []connect.HandlerOption{
		connect.WithCodec(codec.JSON{}),
		connect.WithInterceptors(
			interceptors.NewLoggingInterceptor(deps.Logger),
			interceptors.NewAuthInterceptor([]byte(cfg.Auth.JWTSecret), deps.Logger),
			interceptors.NewRateLimitInterceptor(cfg.Server.RateLimitPerSecond, cfg.Server.RateLimitBurst),
		),
	}

	mux := http.NewServeMux()
	mux.Handle(deps.ImportHandler.Routes(opts...))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return withCORS(cfg.Server.AllowedOrigins, mux)
}

func withCORS(origins []string, h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   connectcors.AllowedMethods(),
		AllowedHeaders:   append(connectcors.AllowedHeaders(), "Authorization"),
		ExposedHeaders:   connectcors.ExposedHeaders(),
		AllowCredentials: true,
		MaxAge:           7200,
	}).Handler(h)
}
