package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-core/blob"
	"chat-core/dispatch"
	"chat-core/moderation"
	"chat-core/repositories"
	"chat-core/runtime"
	"chat-core/runtime/workers"
	"chat-core/services"
	"chat-core/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so deferred cleanup always executes.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	maskRune, err := CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Stores & services
	accountRepository := repositories.NewAccountRepository(db)
	sessionRepository := repositories.NewSessionRepository(db)
	messageRepository := repositories.NewMessageRepository(db, log)
	reportRepository := repositories.NewReportRepository(db)

	blobs, err := blob.NewStore(config.BlobDir, config.BlobBaseURL)
	if err != nil {
		return err
	}

	masker, err := moderation.NewMasker(moderation.DefaultWords(), maskRune)
	if err != nil {
		return fmt.Errorf("building moderation masker failed: %w", err)
	}

	registry := runtime.NewRegistry(log)
	tracker := runtime.NewActivityTracker()

	directory := services.NewDirectory(accountRepository, sessionRepository, registry, config.HomeRegion)
	messages := services.NewMessages(directory, messageRepository, registry, masker, config.HistoryLimit, log)
	relationships := services.NewRelationships(accountRepository, reportRepository, registry, log)

	// No connection survives a restart: stored online flags are stale.
	if err := directory.ResetPresence(); err != nil {
		return fmt.Errorf("resetting presence failed: %w", err)
	}

	dispatcher := dispatch.NewDispatcher(directory, messages, relationships,
		registry, tracker, blobs, log)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervised workers
	sup := workers.NewSupervisor(log)
	sup.Add(workers.NewReaper(tracker, dispatcher.Teardown,
		config.IdleThreshold, config.SweepInterval, log))
	go sup.Run(ctx)

	// 6. HTTP / websocket server
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:    address,
		Handler: transport.NewRouter(ctx, dispatcher, blobs.Dir(), config.ConnectionBufferSize, log),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
