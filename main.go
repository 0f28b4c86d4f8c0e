package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"whiteboard/internal/api"
	"whiteboard/internal/config"
	"whiteboard/internal/middleware"
	"whiteboard/internal/relay"
	"whiteboard/internal/telemetry"
	"whiteboard/internal/transport"

	"github.com/sirupsen/logrus"
)

const serviceName = "whiteboard"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	cfg.ConfigureLogging()

	log := logrus.WithField("component", "main")

	jaegerShutdown, err := telemetry.InitJaeger(serviceName, cfg.JaegerEndpoint)
	if err != nil {
		log.WithError(err).Warn("failed to initialize jaeger, continuing without tracing")
		jaegerShutdown = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.WithError(err).Warn("failed to shut down jaeger")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limits := cfg.Limits()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hub := relay.NewHub(limits)
	go hub.Run(hubCtx)

	ipLimiter := middleware.NewIPRateLimit()
	go cleanupLimiters(ctx, ipLimiter)

	wsHandler := transport.NewHandler(hub, limits, cfg.AllowedOrigins)
	router := api.NewRouter(wsHandler, hub, ipLimiter, cfg.StaticDir)

	// no WriteTimeout: it would cut long-lived WebSocket connections
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":            cfg.Addr(),
			"allowed_origins": cfg.AllowedOrigins,
			"static_dir":      cfg.StaticDir,
		}).Info("whiteboard relay listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	// closing the sessions first sends every client a close frame
	stopHub()
	<-hub.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server forced to shut down")
	}

	log.Info("shutdown complete")
}

// cleanupLimiters: routine to drop idle per-IP limiters
func cleanupLimiters(ctx context.Context, ipLimiter *middleware.IPRateLimit) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ipLimiter.Cleanup()
		}
	}
}
