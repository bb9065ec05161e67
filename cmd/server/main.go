package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qntmpulse/relationship-engine/internal/api"
	"github.com/qntmpulse/relationship-engine/internal/config"
	"github.com/qntmpulse/relationship-engine/internal/engine"
	"github.com/qntmpulse/relationship-engine/internal/enrich"
	"github.com/qntmpulse/relationship-engine/internal/repository/postgres"
	"github.com/qntmpulse/relationship-engine/internal/storage"
	"github.com/qntmpulse/relationship-engine/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
)

func main() {
	log.Println("Starting relationship engine server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	store, err := storage.New(ctx, cfg.Snapshots)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Optional Postgres handle: durable state mirror plus the
	// advisory-lock fallback for the background sweeps.
	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}

		if err := store.SetDurable(ctx, postgres.NewStore(db)); err != nil {
			log.Fatalf("Failed to hydrate from database: %v", err)
		}
	}

	var enricher engine.Enricher
	if cfg.Enrichment.Enabled {
		e, err := enrich.New(ctx, cfg.Enrichment)
		if err != nil {
			log.Fatalf("Failed to initialize enricher: %v", err)
		}
		enricher = e
	}

	eng := engine.New(cfg, store, enricher)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: redis ping failed, sweep locks fall back to Postgres: %v", err)
			redisClient = nil
		}
	}

	sweeper := worker.NewSweeper(eng, cfg)
	sweeper.SetRedisClient(redisClient)
	sweeper.SetDB(db)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start sweeper: %v", err)
	}

	server := api.NewServer(cfg.Server, eng)
	server.Handlers().SetSweeper(sweeper)

	go func() {
		log.Printf("Listening on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	sweeper.Stop()

	if err := eng.Persist(shutdownCtx); err != nil {
		log.Printf("Final state snapshot failed: %v", err)
	}

	log.Println("Stopped")
}
