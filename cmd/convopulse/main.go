package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/convopulse/convopulse/internal/config"
	"github.com/convopulse/convopulse/internal/database"
	"github.com/convopulse/convopulse/internal/observability"
	"github.com/convopulse/convopulse/internal/repository"
	"github.com/convopulse/convopulse/internal/server"
	"github.com/convopulse/convopulse/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	obs, err := observability.New(cfg.Observability)
	if err != nil {
		log.Fatalf("observability: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var eventStore store.EventStore
	if cfg.Database != nil {
		if err := database.RunMigrations(ctx, cfg.Database.URL()); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		pool, err := database.NewPool(ctx, cfg.Database, obs.Log(), obs.App())
		if err != nil {
			log.Fatalf("database pool: %v", err)
		}
		defer pool.Close()
		eventStore = repository.NewMessageRepository(pool)
	} else {
		obsLog := obs.Log()
		obsLog.Info().Msg("no database configured, using in-memory event store")
		eventStore = store.NewMemory()
	}

	srv := server.New(cfg, obs, eventStore)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server exited: %v", err)
		os.Exit(1)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := obs.Close(closeCtx); err != nil {
		log.Printf("observability close: %v", err)
	}
}
