package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multiview-composer/internal/composer"
	"multiview-composer/internal/platform/config"
	"multiview-composer/internal/platform/logger"
	"multiview-composer/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	configPath := config.GetEnv("CONFIG_PATH", "viewer.yaml")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	streamFPS := config.GetEnvInt("STREAM_FPS", composer.DefaultStreamFPS)
	workers := config.GetEnvInt("COMPOSE_WORKERS", 0)
	logRequests := config.GetEnvBool("LOG_REQUESTS", true)

	log := logger.New(logLevel, logFormat)

	cfg, err := composer.LoadConfig(configPath)
	if err != nil {
		log.Error("config load failed", "path", configPath, "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	comp, err := composer.NewCompositor(cfg, workers, log, met)
	if err != nil {
		log.Error("compositor init failed", "error", err)
		os.Exit(1)
	}
	h := composer.NewHandler(comp, log, streamFPS)

	r := chi.NewRouter()
	// Per-request logging is optional: at teleop stream rates it can dwarf
	// the application logs.
	if logRequests {
		r.Use(logger.RequestLogger(log))
	}
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveCameras(comp.ActiveCameraCount()) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"config", configPath,
		"stream_fps", streamFPS,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
