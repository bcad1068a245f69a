package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/exedis/omnicore-back/internal/api"
	"github.com/exedis/omnicore-back/internal/config"
	"github.com/exedis/omnicore-back/internal/db"
	"github.com/exedis/omnicore-back/internal/dedup"
	"github.com/exedis/omnicore-back/internal/events"
	"github.com/exedis/omnicore-back/internal/kafka"
	"github.com/exedis/omnicore-back/internal/logging"
	"github.com/exedis/omnicore-back/internal/notification"
	"github.com/exedis/omnicore-back/internal/providers"
	"github.com/exedis/omnicore-back/internal/queue"
	"github.com/exedis/omnicore-back/internal/services"
	"github.com/exedis/omnicore-back/pkg/email"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()
	if err := dbConn.Ping(ctx); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}

	guard := dedup.New(cfg.Dedup.Window, cfg.Dedup.SweepInterval, logger)
	go guard.Start(ctx)

	hub := events.NewHub(logger)
	defer hub.Close()

	// Channel senders
	telegram, err := providers.NewTelegramSender(providers.TelegramConfig{
		BotToken:  cfg.Telegram.BotToken,
		APIURL:    cfg.Telegram.APIURL,
		RateLimit: cfg.Telegram.RateLimit,
	}, dbConn, logger)
	if err != nil {
		log.Fatalf("Telegram init failed: %v", err)
	}
	mailer := providers.NewEmailSender(providers.EmailConfig{
		SMTP: email.SMTP{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Secure:   cfg.Email.SMTPSecure,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
		},
		From:         cfg.Email.From,
		UseSendmail:  cfg.Email.UseSendmail,
		SendmailPath: cfg.Email.SendmailPath,
	}, dbConn, logger)

	processor := services.NewProcessor(services.Deps{
		Submissions: dbConn,
		Fields:      dbConn,
		Tasks:       dbConn,
		Loader:      notification.NewLoader(dbConn),
		Dispatcher:  notification.NewDispatcher(logger, telegram, mailer),
		Publisher:   hub,
	}, logger)

	deps := api.Deps{Store: dbConn, Events: hub, Dedup: guard}

	var linker *notification.TelegramLinker
	if cfg.Telegram.BotToken != "" {
		linker = notification.NewTelegramLinker(dbConn, notification.NewSettingsService(dbConn), hub, cfg.Telegram.BotUsername, logger)
		deps.Linker = linker
	}

	// Job queue
	var jobs *queue.Queue
	var enqueuer services.Enqueuer
	if cfg.Queue.Mode == config.ModeQueued {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
		jobs = queue.New(rdb, logger, queue.Options{
			Workers:           cfg.Queue.Workers,
			MaxAttempts:       cfg.Queue.MaxAttempts,
			BackoffBase:       cfg.Queue.BackoffBase,
			CompletedHistory:  cfg.Queue.CompletedHistory,
			ProcessingTimeout: cfg.Queue.ProcessingTimeout,
		})
		enqueuer = jobs
		deps.Queue = jobs
	}

	ingestor := services.NewIngestor(guard, enqueuer, processor, cfg.Queue.Mode, logger)
	deps.Ingester = ingestor

	runWorkers := cfg.Role != config.RoleAPI
	runAPI := cfg.Role != config.RoleWorker

	if jobs != nil && runWorkers {
		jobs.Start(processor.Handle)
	}

	var wg sync.WaitGroup
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" && runWorkers {
		consumer = kafka.NewConsumer(strings.Split(cfg.Kafka.Broker, ","), cfg.Kafka.Topic, cfg.Kafka.GroupID, ingestor, logger)
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	}

	if linker != nil && runAPI && cfg.Telegram.Polling {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := telegram.ServeUpdates(ctx, linker); err != nil {
				logger.Errorf("Telegram bot stopped: %v", err)
			}
		}()
	}

	// Start API server
	var server *http.Server
	if runAPI {
		server = &http.Server{Addr: cfg.API.Port, Handler: api.NewRouter(deps, logger, cfg)}
		go func() {
			logger.Infof("Starting API server on %s", cfg.API.Port)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("API server failed: %v", err)
			}
		}()
	}

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Infof("Shutting down...")

	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("API shutdown failed: %v", err)
		}
		done()
	}
	cancel()
	if jobs != nil {
		jobs.Stop()
	}
	wg.Wait()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Kafka close failed: %v", err)
		}
	}
	logger.Infof("Service stopped")
}
