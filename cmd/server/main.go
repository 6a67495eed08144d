package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"image-harvester/internal/browser"
	"image-harvester/internal/collector"
	"image-harvester/internal/config"
	"image-harvester/internal/diagnostics"
	"image-harvester/internal/domain"
	"image-harvester/internal/harvest"
	"image-harvester/internal/logging"
	"image-harvester/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	path := os.Getenv("HARVESTER_CONFIG")
	if path == "" {
		path = config.DefaultPath()
	}
	settings, err := config.NewFileStore(path).Load()
	if err != nil {
		log.Fatalf("load settings: %v", err)
	}
	if addr := os.Getenv("HARVESTER_ADDR"); addr != "" {
		settings.ListenAddr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		settings.ListenAddr = ":" + port
	}

	logger, err := logging.New(settings.Debug)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if !settings.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	svc := collector.New(collector.Options{
		DownloadDir: settings.DownloadDir,
		Runner:      harvest.FromSettings(settings, browser.NewFactory(browser.OptionsFromSettings(settings))),
		Logger:      logger,
	})

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)
	for _, item := range report.Problems() {
		logger.Warn("diagnostic check", zap.String("item", item.ID), zap.String("status", string(item.Status)), zap.String("message", item.Message))
	}

	handler := server.New(svc, server.Options{
		Logger:      logger,
		Diagnostics: func() domain.DiagnosticReport { return checker.Run(settings) },
	})

	srv := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           handler.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", zap.String("addr", settings.ListenAddr), zap.String("download_dir", settings.DownloadDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := svc.Shutdown(ctx); err != nil {
		logger.Warn("jobs still running at exit", zap.Error(err))
	}
	logger.Info("server exited")
}
