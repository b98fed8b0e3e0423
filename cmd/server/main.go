package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tendant/direct-upload/pkg/directupload/api"
	"github.com/tendant/direct-upload/pkg/directupload/config"
)

const (
	startTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment")
	usage := flag.Bool("usage", false, "print the recognised environment variables and exit")
	flag.Parse()

	if *usage {
		fmt.Print(config.Usage())
		return
	}

	if err := run(*envFile); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	serverConfig, err := config.LoadFromEnv(envFile)
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}

	level := slog.LevelInfo
	if serverConfig.Environment == "development" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	rt, err := serverConfig.Build(context.Background(), logger)
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer rt.Close()

	// The self-test and the role lookup must both succeed before any traffic is served.
	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	err = rt.Service.Start(startCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: routes(api.NewHandler(rt.Service, rt.Store, logger), serverConfig.CORSAllowedOrigins),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("direct upload server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"bucket", serverConfig.Bucket,
			"region", serverConfig.Region,
			"storage", serverConfig.StorageType,
			"database", serverConfig.DatabaseType)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exiting")
	return nil
}

func routes(handler *api.Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{"Retry-After"},
			MaxAge:         300,
		}))
	}
	r.Mount("/", handler.Routes())
	return r
}
