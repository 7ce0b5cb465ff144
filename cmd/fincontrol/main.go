package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fincontrol/internal/amqp"
	"fincontrol/internal/cli"
	apphttp "fincontrol/internal/http"
	"fincontrol/internal/log"
	"fincontrol/internal/metrics"
	"fincontrol/internal/services"
)

func main() {
	cli.LoadEnvFile()
	boot := cli.SetupLogger(log.ComponentApp, log.DefaultConfig().Level)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(log.ComponentApp, cfg.Level())

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// the mirror is optional; without a broker writes are only swept later
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, spreadsheet mirror relies on the worker sweep")
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:         ":" + cfg.Port,
		Repository:   repo,
		Publisher:    publisher,
		Metrics:      metrics.New(),
		Logger:       logger,
		Location:     cfg.Location(),
		OwnerHeader:  cfg.OwnerHeader,
		DefaultOwner: cfg.DefaultOwner,
		RateLimit:    cfg.RateLimit,
		CacheTTL:     cfg.CacheTTL,
	})

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting fincontrol server", "port", cfg.Port, "time_zone", cfg.TimeZone, "db", cfg.SQLiteDBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}

	cli.RunWithTimeout(logger, 30*time.Second, func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
	logger.Info("Server stopped gracefully")
}
