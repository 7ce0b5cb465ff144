package main

import (
	"context"
	"flag"
	"os"

	"fincontrol/internal/amqp"
	"fincontrol/internal/cli"
	"fincontrol/internal/core"
	"fincontrol/internal/log"
	"fincontrol/internal/seed"
	"fincontrol/internal/services"
)

func main() {
	username := flag.String("user", seed.DefaultUsername, "owner username to seed")
	count := flag.Int("count", seed.DefaultCount, "number of sample transactions")
	flag.Parse()

	cli.LoadEnvFile()
	boot := cli.SetupLogger(log.ComponentSeed, log.DefaultConfig().Level)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(log.ComponentSeed, cfg.Level())

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, mirror relies on the worker sweep", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
		}
	}

	res, err := seed.Run(context.Background(), repo, seed.Options{
		Username:  *username,
		Count:     *count,
		Today:     core.Today(cfg.Location()),
		Publisher: publisher,
	}, logger)
	if err != nil {
		logger.Error("Seed failed", log.FieldError, err)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("Database seeded", "user", *username, log.FieldOwner, res.OwnerID, "transactions", res.Created)
}
