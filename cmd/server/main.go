package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twojapodobizna/api/internal/config"
	"github.com/twojapodobizna/api/internal/database"
	"github.com/twojapodobizna/api/internal/mail"
	"github.com/twojapodobizna/api/internal/router"
	"github.com/twojapodobizna/api/internal/upload"
	"github.com/twojapodobizna/api/internal/ws"
	"github.com/twojapodobizna/api/migrations"
)

func main() {
	cfg := config.Load()

	if err := migrations.Up(cfg.DatabaseURL); err != nil {
		log.Fatalf("Unable to run migrations: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}

	queries := database.New(pool)

	saver, err := upload.NewSaver(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Unable to prepare upload directory: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	mailer := mail.New(cfg)

	r := router.New(cfg, queries, pool, hub, saver, mailer)

	log.Printf("Starting server on :%s", cfg.Port)
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.Port), r); err != nil {
		log.Fatal(err)
	}
}
