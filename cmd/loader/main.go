package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rkata-ai/tg-ingest/internal/config"
	"rkata-ai/tg-ingest/internal/loader"
	"rkata-ai/tg-ingest/internal/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	log.Println("Starting snapshot loader")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.ValidateLoader(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Printf("Загрузка не выполнена: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Database.Kind, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("store is not reachable: %w", err)
	}
	log.Printf("Подключено к хранилищу %s", cfg.Database.Kind)

	report, err := loader.New(loader.Config{Root: cfg.Snapshot.Root}, store).Run(ctx)
	if err != nil {
		return err
	}
	for _, fe := range report.SkippedFiles {
		log.Printf("  пропущен %s: %v", fe.Path, fe.Err)
	}
	log.Printf("Прогон %s: файлов %d, загружено %d, строк в таблице %d",
		report.RunID, report.Files, report.Loaded, report.Rows)
	return nil
}
