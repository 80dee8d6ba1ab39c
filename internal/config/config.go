package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	APIAddr  string `env:"API_ADDR" envDefault:":8000"`
	APIToken string `env:"API_TOKEN"`

	S3 S3Config

	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"5"`

	Run RunConfig
}

// S3Config points at the MinIO/S3 bucket holding raw reports.
type S3Config struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"reports"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Region    string `env:"MINIO_REGION" envDefault:"us-east-1"`
}

// RunConfig holds defaults for exercise runs that don't specify their own.
type RunConfig struct {
	Image   string        `env:"RUN_IMAGE" envDefault:"rust:1.79"`
	Command string        `env:"RUN_COMMAND"`
	Timeout time.Duration `env:"RUN_TIMEOUT" envDefault:"15m"`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if c.WorkerConcurrency < 1 {
		return Config{}, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency)
	}
	return c, nil
}

// Require fails if any of the named settings is empty. Each binary checks
// only what it uses.
func (c Config) Require(names ...string) error {
	values := map[string]string{
		"DATABASE_URL":     c.DatabaseURL,
		"REDIS_ADDR":       c.RedisAddr,
		"API_TOKEN":        c.APIToken,
		"MINIO_ENDPOINT":   c.S3.Endpoint,
		"MINIO_BUCKET":     c.S3.Bucket,
		"MINIO_ACCESS_KEY": c.S3.AccessKey,
		"MINIO_SECRET_KEY": c.S3.SecretKey,
		"RUN_COMMAND":      c.Run.Command,
	}
	for _, n := range names {
		v, ok := values[n]
		if !ok {
			return fmt.Errorf("unknown setting %s", n)
		}
		if v == "" {
			return fmt.Errorf("%s is not set", n)
		}
	}
	return nil
}
