package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"transcriber/config"
	"transcriber/lifecycle"
	"transcriber/server"
	"transcriber/services"
)

func main() {
	log.Println("Starting transcription service...")

	loadDotEnv()
	cfg := config.Load()

	if cfg.WebhookSecret == "" {
		log.Fatal("WEBHOOK_SECRET must be set; unsigned webhook deliveries are rejected")
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis successfully")

	dbSvc, err := services.NewDatabaseService(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbSvc.Close()
	log.Println("Connected to database successfully")

	orchestrator := lifecycle.NewOrchestrator(
		dbSvc,
		dbSvc,
		services.NewQuotaPolicy(dbSvc),
		services.NewQueuePublisher(cfg),
		services.NewNotifier(cfg, dbSvc),
		services.NewTitleResolver(time.Duration(cfg.TitleTimeout)*time.Second),
		services.NewStatusCache(cfg, redisClient),
		cfg.BaseURL,
	)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.Server{
			Jobs:          orchestrator,
			Reader:        dbSvc,
			Notifications: dbSvc,
			WebhookSecret: cfg.WebhookSecret,
		}.Router(),
	}

	var wg sync.WaitGroup
	runCtx, cancel := context.WithCancel(context.Background())

	if cfg.SweepEnabled {
		sweeper := lifecycle.NewSweeper(
			dbSvc,
			orchestrator,
			time.Duration(cfg.SweepInterval)*time.Minute,
			time.Duration(cfg.SweepStaleAfter)*time.Hour,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(runCtx)
		}()
	}

	go func() {
		log.Printf("Listening on %s (base URL %s)", cfg.Addr, cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	log.Printf("Publishing to SQS queue: %s", cfg.SQSQueueURL)
	log.Println("Service is ready to accept transcription jobs")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All background loops stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout, forcing exit")
	}

	redisClient.Close()
	log.Println("Transcription service stopped")
}

func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
