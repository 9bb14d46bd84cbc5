package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carelink/internal/broadcast"
	"carelink/internal/collab"
	"carelink/internal/config"
	"carelink/internal/registry"
	"carelink/internal/service"
	"carelink/internal/subscribers"
	"carelink/internal/transport/rest"
	"carelink/internal/transport/ws"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	log.Println("started")
	ctx := context.Background()
	cfg := config.Load()

	// Durable-record collaborators: mongo-backed ledger and redis-backed
	// blob store when configured, in-memory variants otherwise.
	var blobs collab.BlobStore
	var ledger collab.Ledger

	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("Failed to connect to MongoDB:", err)
		}
		defer mongoClient.Disconnect(ctx)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := mongoClient.Ping(pingCtx, nil); err != nil {
			log.Fatal("Failed to ping MongoDB:", err)
		}
		log.Println("Connected to MongoDB")

		ledger = collab.NewMongoLedger(mongoClient.Database("carelink"))
	} else {
		log.Println("Warning: MONGO_URI not set, using in-memory ledger")
		ledger = collab.NewMemoryLedger()
	}

	if cfg.RedisAddr != "" {
		addr := cfg.RedisAddr
		if len(addr) > 8 && addr[:8] == "redis://" {
			addr = addr[8:]
		}
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()

		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatal("Failed to ping Redis:", err)
		}
		log.Println("Connected to Redis")

		blobs = collab.NewRedisBlobStore(rdb)
	} else {
		log.Println("Warning: REDIS_ADDR not set, using in-memory blob store")
		blobs = collab.NewMemoryBlobStore()
	}

	// Core wiring: directory feeds the engine, the engine is the
	// registry's event sink, the service orchestrates all of it.
	dir := subscribers.NewDirectory()
	engine := broadcast.NewEngine(dir)
	reg := registry.NewRegistry(engine)
	callSvc := service.NewCallService(reg, dir, engine, blobs, ledger)

	container := &rest.Container{
		CallService: callSvc,
		WSHandler:   ws.NewHandler(callSvc),
	}
	router := rest.NewRouter(container)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.HTTPPort)
		log.Println("Endpoints:")
		log.Println("  POST /v1/calls")
		log.Println("  POST /v1/calls/{id}/answer")
		log.Println("  POST /v1/calls/{id}/end")
		log.Println("  POST /v1/calls/{id}/status")
		log.Println("  GET  /v1/calls/{id}")
		log.Println("  GET  /v1/calls/active")
		log.Println("  GET  /v1/calls/concluded")
		log.Println("  GET  /v1/calls/stats")
		log.Println("  POST/GET /v1/calls/{id}/signals")
		log.Println("  GET  /v1/records")
		log.Println("  WS   /v1/ws/calls/{id}")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
