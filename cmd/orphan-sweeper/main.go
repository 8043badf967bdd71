package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/princekumarofficial/gallery-service/internal/config"
	"github.com/princekumarofficial/gallery-service/internal/logger"
	"github.com/princekumarofficial/gallery-service/internal/services/media"
	"github.com/princekumarofficial/gallery-service/internal/storage/postgres"
	"github.com/princekumarofficial/gallery-service/internal/sweeper"
)

func main() {
	// Load config
	cfg := config.MustLoad()
	l := logger.Setup(cfg.Env)

	if cfg.Storage.Records != "postgres" {
		log.Fatal("orphan sweeper needs a shared record store, storage.records must be postgres")
	}

	// Initialize database connection
	records, err := postgres.NewPostgres(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer records.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var objects media.ObjectStore
	if cfg.Storage.Objects == "s3" {
		objects, err = media.NewMinioStore(ctx, cfg)
	} else {
		objects, err = media.NewFSStore(cfg.Storage.FSRoot)
	}
	if err != nil {
		log.Fatal("Failed to initialize object storage:", err)
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	s := sweeper.New(objects, records, cfg.Sweeper.GracePeriod, l)
	s.Start(ctx, cfg.Sweeper.Interval)

	slog.Info("Orphan sweeper stopped")
}
