package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mixaill76/log_analyzer/internal/config"
	"github.com/mixaill76/log_analyzer/internal/logger"
	"github.com/mixaill76/log_analyzer/internal/startup"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	initSchema := flag.Bool("init-schema", false, "Create missing tables before the first cycle")
	once := flag.Bool("once", false, "Run a single cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg)
	slog.SetDefault(log)
	config.PrintConfig(log, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := startup.Build(ctx, cfg, log, startup.Options{InitSchema: *initSchema})
	if err != nil {
		log.Error("Startup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("Shutdown failed", "error", err)
		}
	}()

	if *once {
		if err := app.RunCycle(ctx); err != nil {
			log.Error("Analysis cycle failed", "error", err)
			os.Exit(1)
		}
		return
	}

	var server *http.Server
	if cfg.Monitoring.PrometheusEnabled {
		server = &http.Server{
			Addr:              cfg.Monitoring.Listen,
			Handler:           newMux(app),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("Metrics server starting", "listen", cfg.Monitoring.Listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	log.Info("Starting log analyzer",
		"dir", cfg.Dir,
		"minute_offset", cfg.MinuteOffset(),
	)
	app.Scheduler.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Metrics server forced to shutdown", "error", err)
		}
	}
	log.Info("Log analyzer stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	switch cfg.Logging.Format {
	case logger.FormatJSON:
		return logger.NewJSON(cfg.Logging.Level)
	case logger.FormatConsole:
		return logger.NewConsole(cfg.Logging.Level)
	default:
		return logger.New(cfg.Logging.Level)
	}
}

func newMux(app *startup.App) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/health", app.Health)
	return mux
}
