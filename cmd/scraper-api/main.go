package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/catalog-scraper/internal/api"
	"github.com/maltedev/catalog-scraper/internal/config"
	"github.com/maltedev/catalog-scraper/internal/database"
	"github.com/maltedev/catalog-scraper/internal/jobs"
	"github.com/maltedev/catalog-scraper/internal/queue"
	"github.com/maltedev/catalog-scraper/internal/scraper"
	"github.com/maltedev/catalog-scraper/internal/storage"
	"github.com/maltedev/catalog-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sel, err := config.LoadSelectors(cfg.Browser.SelectorsFile)
	if err != nil {
		log.Error("failed to load selectors", "error", err)
		os.Exit(1)
	}

	var store scraper.Store
	var relay *database.Relay
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			log.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		dbStore := database.NewStore(db)
		store = dbStore

		if cfg.Redis.Enabled {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				log.Error("failed to connect to Redis", "error", err)
				os.Exit(1)
			}

			relay = database.NewRelay(dbStore.Outbox(), redisClient, log, database.RelayConfig{
				PollInterval: cfg.Redis.PollInterval,
				BatchSize:    100,
			})
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("relay stopped with error", "error", err)
				}
			}()
		}
	} else {
		fs, err := storage.NewFileStore(cfg.Scraper.StorageFile)
		if err != nil {
			log.Error("failed to open storage file", "error", err)
			os.Exit(1)
		}
		store = fs
	}

	runner, err := jobs.NewDefaultRunner(cfg, sel, store)
	if err != nil {
		log.Error("failed to build runner", "error", err)
		os.Exit(1)
	}

	q := queue.NewInMemoryQueue()
	manager := jobs.NewManager(q, runner, log)
	workerDone := make(chan struct{})
	go func() {
		manager.StartWorker(ctx)
		close(workerDone)
	}()

	handlers := api.NewHandlers(manager, store, cfg.Server.JobsPerMinute, log)
	if relay != nil {
		handlers.WithOutbox(relay)
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.WriteTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down server...")
		q.Close()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}

	<-workerDone
	log.Info("server stopped")
}
