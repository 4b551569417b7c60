package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentry "github.com/getsentry/sentry-go"

	"postline-bot/internal/cache"
	"postline-bot/internal/config"
	"postline-bot/internal/database"
	"postline-bot/internal/dedupe"
	"postline-bot/internal/housekeeping"
	"postline-bot/internal/intake"
	"postline-bot/internal/media"
	"postline-bot/internal/posting"
	"postline-bot/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize Sentry (if DSN is provided)
	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	// Connect to MongoDB
	client, db, err := database.ConnectDB(cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
	defer func() {
		if err = client.Disconnect(context.Background()); err != nil {
			log.Printf("Error disconnecting from MongoDB: %v", err)
			sentry.CaptureException(err)
		} else {
			log.Println("Disconnected from MongoDB.")
		}
	}()

	// Create repository instances
	postRepo := database.NewMongoPostRepository(db)
	channelRepo := database.NewMongoChannelRepository(db)
	attachmentRepo := database.NewMongoAttachmentRepository(db)

	// Media resolution and the local cache
	store := cache.NewStore(cfg.StorageRoot, cfg.CacheTTL(), cfg.DownloadTimeout)
	chain := media.NewChain(media.ChainOptions{
		ServiceURL:     cfg.ResolverServiceURL,
		ServiceTimeout: cfg.ResolverTimeout,
		FetchTimeout:   cfg.DownloadTimeout,
		UserAgent:      cfg.ScrapeUserAgent,
	})
	pipeline := media.NewPipeline(chain, store, postRepo, attachmentRepo)

	// Publication machinery
	scorer := dedupe.NewScorer(postRepo)
	sender := telegram.NewSender()
	publisher := posting.NewPublisher(postRepo, channelRepo, attachmentRepo, store, sender, scorer)
	sweep := housekeeping.NewSweep(postRepo, attachmentRepo, store, cfg.PublishedRetention(), cfg.StaleGrace())
	worker := posting.NewWorker(postRepo, publisher, sweep, cfg.PollInterval, cfg.WorkerCount)

	// Intake/editorial HTTP API
	service := posting.NewService(postRepo, channelRepo, scorer)
	handler := intake.NewHandler(intake.NewIntake(postRepo, channelRepo, pipeline), service)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: intake.NewServer(handler, cfg.APIAccessKey),
	}

	// Creating context for application lifecycle
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Intake API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sentry.CaptureException(err)
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	worker.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("Shutdown complete.")
}
