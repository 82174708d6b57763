package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/andmosc/stockbook/config"
	"github.com/andmosc/stockbook/data"
	"github.com/andmosc/stockbook/data/cache"
	"github.com/andmosc/stockbook/data/repository/postgres"
	"github.com/andmosc/stockbook/data/session"
	"github.com/andmosc/stockbook/internal/externalApi/cloudStorageApi/googleDriveApi"
	"github.com/andmosc/stockbook/internal/externalApi/yahooApi"
	"github.com/andmosc/stockbook/internal/reportGenerator/xlsxGenerator"
	"github.com/andmosc/stockbook/internal/scheduler"
	"github.com/andmosc/stockbook/internal/service/stockbookService"
	"github.com/andmosc/stockbook/internal/transport/httpapi"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgClient := data.NewPostgresClient(cfg)
	defer pgClient.Close()

	pgRepo := postgres.NewPostgres(cfg, pgClient)

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	redisCache := cache.NewRedisCache(redisClient, cfg)
	redisSession := session.NewRedisSession(redisClient, cfg)

	yahooApiClient := yahooApi.New(cfg)

	reportGenerator := xlsxGenerator.New()

	stockbookSrv := stockbookService.New(pgRepo, redisCache, yahooApiClient, reportGenerator)

	sched := scheduler.New()
	sched.NewIntervalJob("refresh quotes", stockbookSrv.RefreshQuotes, cfg.Jobs.RefreshQuotesInterval, true)

	if cfg.GoogleDrive.Enabled {
		googleCloudStorage := googleDriveApi.New(ctx, cfg)
		stockbookSrv.WithCloudStorage(googleCloudStorage)
		sched.NewIntervalJob("drive cleanup", stockbookSrv.CleanupReports, cfg.Jobs.DriveCleanupInterval, false)
	}

	sched.Start()
	defer sched.Stop()

	controller := httpapi.NewController(stockbookSrv, redisSession, cfg)
	server := httpapi.NewServer(cfg, controller)

	go func() {
		slog.Info("http server started", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-interrupt:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", slog.String("err", err.Error()))
	}
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
