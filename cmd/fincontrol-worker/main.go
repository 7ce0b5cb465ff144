package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fincontrol/internal/amqp"
	"fincontrol/internal/backend"
	"fincontrol/internal/cli"
	"fincontrol/internal/log"
	"fincontrol/internal/metrics"
	"fincontrol/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	boot := cli.SetupLogger(log.ComponentWorker, log.DefaultConfig().Level)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(log.ComponentWorker, cfg.Level())
	logger.Info("Starting fincontrol-worker", "mirror", cfg.MirrorBackend)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	mirrorCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid mirror configuration", log.FieldError, err)
		os.Exit(1)
	}
	mirror, err := backend.NewFactory(logger.Logger).CreateMirror(ctx, mirrorCfg)
	if err != nil {
		logger.Error("Failed to create mirror", log.FieldError, err)
		os.Exit(1)
	}
	if mirror.Cleanup != nil {
		defer func() {
			if err := mirror.Cleanup(); err != nil {
				logger.Warn("Mirror cleanup failed", log.FieldError, err)
			}
		}()
	}

	m := metrics.New()
	metricsSrv := cli.ServeMetrics(logger, cfg.MetricsAddr, m)
	w := worker.NewSyncWorker(repo, mirror.Mirror, cfg.SyncBatchSize, m)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.Run(gctx, cfg.SyncInterval)
		return nil
	})

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		g.Go(func() error {
			err := client.Consume(gctx, w.HandleMessage)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, mirroring from the periodic sweep only", "interval", cfg.SyncInterval)
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
	}

	cli.RunWithTimeout(logger, 10*time.Second, metricsSrv.Shutdown)
	logger.Info("Worker shutdown complete")
}
