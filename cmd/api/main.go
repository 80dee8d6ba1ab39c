package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"classroom-judge/internal/config"
	"classroom-judge/internal/db"
	httpSrv "classroom-judge/internal/http"
	"classroom-judge/internal/migrations"
	"classroom-judge/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Require("DATABASE_URL", "API_TOKEN", "MINIO_ENDPOINT"); err != nil {
		log.Fatal(err)
	}

	// Run embedded migrations (idempotent)
	if err := migrations.Run(cfg.DatabaseURL); err != nil {
		log.Fatal(err)
	}

	dbase := db.MustOpen(cfg.DatabaseURL)
	s3c, err := storage.New(context.Background(), cfg.S3)
	if err != nil {
		log.Fatal(err)
	}
	asq := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asq.Close()

	srv := httpSrv.NewServer(cfg, dbase, s3c, asq)
	log.Printf("listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
