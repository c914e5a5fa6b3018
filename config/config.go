// Package config loads the service configuration from the environment, with
// optional .env overlays for local development.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Loader struct {
	Prefix   string
	Validate *validator.Validate
}

func NewLoader(prefix string) *Loader {
	return &Loader{Prefix: prefix, Validate: validator.New()}
}

func (l *Loader) Load() (Config, error) {
	var cfg Config

	if err := loadDotEnv(); err != nil {
		log.Printf("dotenv: %v", err)
	}
	if err := envconfig.Process(l.Prefix, &cfg); err != nil {
		return cfg, fmt.Errorf("env load: %w", err)
	}

	if err := l.Validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}
	if cfg.RedisURL == "" && cfg.RedisAddr == "" {
		return cfg, fmt.Errorf("config validation: one of %s_REDIS_URL or %s_REDIS_ADDR is required", l.Prefix, l.Prefix)
	}

	log.Printf("config loaded env=%s logLevel=%s pool=%s redis_set=%t",
		cfg.Env, cfg.LogLevel, cfg.PoolPath, cfg.RedisURL != "" || cfg.RedisAddr != "")

	return cfg, nil
}

func loadDotEnv() error {
	files := []string{".env"}

	if appEnv := strings.TrimSpace(os.Getenv("APP_ENV")); appEnv != "" {
		files = append(files, ".env."+appEnv)
	}
	if goEnv := strings.TrimSpace(os.Getenv("GO_ENV")); goEnv != "" && goEnv != os.Getenv("APP_ENV") {
		files = append(files, ".env."+goEnv)
	}

	var loadedAny bool
	for _, f := range files {
		if fileExists(f) {
			if err := godotenv.Overload(f); err != nil {
				log.Printf("dotenv: failed loading %s: %v", f, err)
				continue
			}
			loadedAny = true
		}
	}

	if !loadedAny {
		return fmt.Errorf("no .env files found (looked for: %s)", strings.Join(files, ", "))
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
