package main

import (
	"context"
	"log"

	"classroom-judge/internal/config"
	"classroom-judge/internal/db"
	"classroom-judge/internal/storage"
	"classroom-judge/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Require("DATABASE_URL", "MINIO_ENDPOINT", "RUN_COMMAND"); err != nil {
		log.Fatal(err)
	}

	db := db.MustOpen(cfg.DatabaseURL)
	s3c, err := storage.New(context.Background(), cfg.S3)
	if err != nil {
		log.Fatal(err)
	}
	if err := worker.Run(cfg, db, s3c); err != nil {
		log.Fatal(err)
	}
}
