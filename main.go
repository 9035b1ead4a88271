package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"reelscope/analysis"
	"reelscope/api"
	"reelscope/config"
	"reelscope/instagram"
	"reelscope/media"
	"reelscope/pipeline"
	"reelscope/store"
	"reelscope/task"
)

func main() {
	// 1. Load configuration and set up logging
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// 2. Initialize the stage adapters
	downloader, err := media.NewDownloader(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize downloader: %v", err)
	}
	transcriber, err := media.NewTranscriber(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize transcriber: %v", err)
	}
	fetcher := instagram.NewFetcher(cfg)

	// 3. Open the research history store
	history, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open history store: %v", err)
	}
	defer history.Close()

	// 4. Wire registry, pipeline and task manager
	registry := task.NewRegistry()
	pl := pipeline.New(registry, downloader, transcriber, fetcher,
		analysis.NewSentimentAnalyzer(), analysis.NewKeyPointExtractor())
	taskManager, err := task.NewManager(cfg, registry, pl, history)
	if err != nil {
		log.Fatalf("Failed to initialize task manager: %v", err)
	}

	// 5. Set up router and server
	router := api.SetupRouter(taskManager, history, cfg)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// 6. Start background services and HTTP server
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taskManager.Start(ctx)

	go func() {
		log.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s", err)
		}
	}()

	// 7. Wait for interrupt signal for graceful shutdown
	<-ctx.Done()

	stop()
	log.Info("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Info("Server exiting")
}
