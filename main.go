package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	charmlog "github.com/charmbracelet/log"
	goredis "github.com/redis/go-redis/v9"

	"github.com/urizennnn/repograde/cache"
	"github.com/urizennnn/repograde/config"
	"github.com/urizennnn/repograde/credential"
	"github.com/urizennnn/repograde/dispatch"
	"github.com/urizennnn/repograde/inspect"
	"github.com/urizennnn/repograde/pool"
	"github.com/urizennnn/repograde/ratelimit"
	"github.com/urizennnn/repograde/redis"
	"github.com/urizennnn/repograde/scrape"
)

var consumerName = fmt.Sprintf("repograde-%d", os.Getpid())

func main() {
	cfg, err := config.NewLoader("APP").Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)
	logger.Info("starting repograde worker", "env", cfg.Env, "consumer", consumerName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := pool.New(cfg.PoolPath, pool.WithLogger(logger))
	if cfg.GithubCredentials != "" {
		descriptors, err := credential.ParseList(cfg.GithubCredentials)
		if err != nil {
			logger.Fatal("credential descriptors", "err", err)
		}
		seed, err := credential.CreateBatch(descriptors)
		if err != nil {
			logger.Fatal("credential construction", "err", err)
		}
		if err := store.SetTokens(seed, false); err != nil {
			logger.Fatal("seeding credential pool", "err", err)
		}
		logger.Info("credential pool seeded", "path", cfg.PoolPath, "count", len(seed))
	}

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	pages, err := cache.New[string](cfg.CacheSize)
	if err != nil {
		logger.Fatal("page cache", "err", err)
	}

	invoker := dispatch.NewGitHubInvoker(httpClient,
		dispatch.WithLimiter(ratelimit.ForAPI(cfg.GithubRateLimit)))
	dispatcher := dispatch.New(invoker,
		dispatch.WithPool(store),
		dispatch.WithLogger(logger),
	)
	extractor := scrape.New(httpClient,
		scrape.WithLimiter(ratelimit.ForPages(cfg.HTMLRateLimit)),
		scrape.WithCache(pages, cfg.CacheTTL),
		scrape.WithLogger(logger),
	)
	inspector := inspect.New(dispatcher, extractor, inspect.WithLogger(logger))

	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb, err = redis.ConnectToRedisURL(cfg.RedisURL)
	} else {
		rdb, err = redis.ConnectToRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisUseTLS)
	}
	if err != nil {
		logger.Fatal("redis connection", "err", err)
	}
	defer rdb.Close()

	err = redis.WatchStreams(ctx, rdb, inspector, redis.Options{
		Consumer:       consumerName,
		Workers:        cfg.WorkerCount,
		BatchSize:      cfg.RedisBatchSize,
		BlockTimeout:   cfg.RedisBlockTimeout,
		MessageTimeout: cfg.MessageTimeout,
		ResultMaxLen:   int64(cfg.RedisStreamMaxLen),
		BackoffMin:     cfg.BackoffMin,
		BackoffMax:     cfg.BackoffMax,
		Log:            logger,
	})
	if err != nil && ctx.Err() == nil {
		logger.Fatal("stream watch", "err", err)
	}
	logger.Info("shutting down", "grace", cfg.ShutdownGrace)
}

func newLogger(level string) *charmlog.Logger {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		lvl = charmlog.InfoLevel
	}
	return charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           lvl,
	})
}
