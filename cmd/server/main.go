package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"guess-the-drop/internal/chat"
	"guess-the-drop/internal/config"
	"guess-the-drop/internal/db"
	"guess-the-drop/internal/pubsub"
	"guess-the-drop/internal/server"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	var store db.GameStore
	var queue db.ChatQueue
	if os.Getenv("DATABASE_URL") != "" {
		conn, err := db.Open(db.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		if err := db.Migrate(conn); err != nil {
			log.Fatalf("database migration failed: %v", err)
		}
		gormStore := db.NewStore(conn)
		store = gormStore
		queue = gormStore
	} else {
		log.Println("DATABASE_URL not set, using in-memory store")
		memory := db.NewMemoryStore()
		store = memory
		queue = memory
	}

	refresher := chat.NewTwitchRefresher(cfg.TwitchClientID, cfg.TwitchClientSecret)
	sender := chat.NewSender(queue, time.Duration(cfg.ChatSendIntervalSeconds)*time.Second, refresher)
	go sender.Run(context.Background())

	rooms := pubsub.NewRegistry()
	srv := server.New(store, rooms, cfg)

	addr := ":8080"
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}
	log.Printf("guess-the-drop server listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}
