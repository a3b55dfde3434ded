package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rkata-ai/tg-ingest/internal/collector"
	"rkata-ai/tg-ingest/internal/config"
	"rkata-ai/tg-ingest/internal/snapshot"
	"rkata-ai/tg-ingest/internal/telegram"
)

func main() {
	var configPath, date string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&date, "date", "", "Run date for snapshot layout (YYYY-MM-DD), defaults to today")
	flag.Parse()

	log.Println("Starting Telegram collector")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.ValidateCollector(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	runDate := time.Now()
	if date != "" {
		if runDate, err = time.ParseInLocation(snapshot.DateLayout, date, time.Local); err != nil {
			log.Fatalf("Invalid -date %q: %v", date, err)
		}
	}

	os.Exit(run(cfg, runDate))
}

func run(cfg *config.Config, runDate time.Time) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := telegram.NewClient(cfg.Telegram, cfg.Collector.BatchSize)
	if err != nil {
		log.Printf("Failed to create Telegram client: %v", err)
		return 1
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Start(ctx)
	}()
	// Клиент останавливается до выхода из run.
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("Error closing Telegram client: %v", err)
		}
		if err := <-errCh; err != nil {
			log.Printf("Telegram клиент завершился с ошибкой: %v", err)
		}
	}()

	log.Println("Ожидание готовности Telegram клиента...")
	select {
	case <-ctx.Done():
		log.Println("Контекст отменен во время ожидания готовности клиента.")
		return 1
	case err := <-errCh:
		// Start вернулся раньше Ready: авторизация или соединение не удались.
		errCh <- nil
		log.Printf("Failed to start Telegram client: %v", err)
		return 1
	case <-client.Ready():
		log.Println("Telegram клиент готов.")
	}

	c := collector.New(collector.Config{
		Root:            cfg.Snapshot.Root,
		RunDate:         runDate,
		Limit:           cfg.Collector.Limit,
		CheckpointEvery: cfg.Collector.CheckpointEvery,
	}, client)
	summary := c.Run(ctx, cfg.Telegram.Channels)

	log.Printf("Прогон %s завершён: каналов %d, с ошибками %d",
		summary.RunID, len(summary.Channels), summary.Failed())
	if ctx.Err() != nil {
		log.Println("Shutting down...")
		return 1
	}
	return 0
}
