// Package api wires configuration, storage and handlers into the HTTP server.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const (
	requestTimeout  = 60 * time.Second
	shutdownTimeout = 15 * time.Second
)

// NewRouter builds the HTTP handler for deps.
func NewRouter(deps *Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "database": "disabled"}
		if deps.DB != nil {
			status["database"] = "ok"
			if err := deps.DB.Pool.Ping(r.Context()); err != nil {
				status["status"], status["database"] = "degraded", err.Error()
				render.Status(r, http.StatusServiceUnavailable)
			}
		}
		render.JSON(w, r, status)
	})

	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		limiter := NewRateLimiter(float64(deps.Config.Server.RateLimitPerSecond), deps.Config.Server.RateLimitBurst, deps.Logger)
		r.Use(limiter.Handler)
		r.Mount("/v1", deps.ImportHandler.Routes())
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	return c.Handler(r)
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func Run(ctx context.Context, deps *Dependencies) error {
	srv := &http.Server{
		Addr:              deps.Config.Server.Addr(),
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if deps.Scheduler != nil {
		if err := deps.Scheduler.Start(deps.Config.Storage.PruneSchedule); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() { <-deps.Scheduler.Stop().Done() }()
	}

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	deps.Logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
