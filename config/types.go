package config

import "time"

type Config struct {
	// App
	Env           string        `split_words:"true" default:"prod" validate:"oneof=dev staging prod"`
	LogLevel      string        `split_words:"true" default:"info" validate:"oneof=debug info warn error"`
	ShutdownGrace time.Duration `split_words:"true" default:"15s" validate:"gt=0"`

	// GitHub credentials: descriptor list, e.g.
	// "pat:TOKEN;client_secret:ID:SECRET;null". Empty seeds nothing; the pool
	// file is used as it already is.
	GithubCredentials string `split_words:"true"`
	PoolPath          string `split_words:"true" default:"pool.json" validate:"required"`

	// Redis. Either a URL or an address; the URL wins when both are set.
	RedisURL      string `split_words:"true"`
	RedisAddr     string `split_words:"true"`
	RedisPassword string `split_words:"true"`
	RedisDB       int    `split_words:"true" default:"0" validate:"gte=0"`
	RedisUseTLS   bool   `split_words:"true" default:"false"`

	// Performance tuning
	WorkerCount       int           `split_words:"true" default:"5" validate:"gt=0"`
	MessageTimeout    time.Duration `split_words:"true" default:"5m" validate:"gt=0"`
	CacheSize         int           `split_words:"true" default:"1000" validate:"gt=0"`
	CacheTTL          time.Duration `split_words:"true" default:"15m" validate:"gt=0"`
	GithubRateLimit   int           `split_words:"true" default:"80" validate:"gt=0"`
	HTMLRateLimit     int           `envconfig:"HTML_RATE_LIMIT" default:"30" validate:"gt=0"`
	HTTPClientTimeout time.Duration `split_words:"true" default:"30s" validate:"gt=0"`

	// Redis tuning
	RedisStreamMaxLen int           `split_words:"true" default:"1000" validate:"gt=0"`
	RedisBlockTimeout time.Duration `split_words:"true" default:"1s" validate:"gt=0"`
	RedisBatchSize    int           `split_words:"true" default:"10" validate:"gt=0"`
	BackoffMin        time.Duration `split_words:"true" default:"100ms" validate:"gt=0"`
	BackoffMax        time.Duration `split_words:"true" default:"3s" validate:"gt=0"`
}
