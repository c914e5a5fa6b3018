// Package redis runs the stream worker: inspection jobs come in on one
// stream, inspection results go out on another, with consumer groups so
// several worker processes can share the load.
package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	JobStream    = "inspect:jobs"
	ResultStream = "inspect:results"
	JobGroup     = "inspectors"
	ResultGroup  = "workers"
)

// Inspector is the facade the worker drives for each job.
type Inspector interface {
	Inspect(ctx context.Context, owner, name string) (map[string]any, error)
}

// Logger is the optional structured sink. A *charmbracelet/log.Logger
// satisfies it.
type Logger interface {
	Warn(msg interface{}, keyvals ...interface{})
	Debug(msg interface{}, keyvals ...interface{})
}

// Options tunes the watch loop. Zero values fall back to the defaults used
// in production.
type Options struct {
	Consumer       string
	Workers        int
	BatchSize      int
	BlockTimeout   time.Duration
	MessageTimeout time.Duration
	ResultMaxLen   int64
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	Log            Logger
}

func (o *Options) fillDefaults() {
	if o.Workers <= 0 {
		o.Workers = 5
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.BlockTimeout <= 0 {
		o.BlockTimeout = time.Second
	}
	if o.MessageTimeout <= 0 {
		o.MessageTimeout = 5 * time.Minute
	}
	if o.ResultMaxLen <= 0 {
		o.ResultMaxLen = 1000
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 100 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 3 * time.Second
	}
}

func ConnectToRedis(addr, password string, db int, useTLS bool) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	if useTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return bootstrap(redis.NewClient(opts))
}

func ConnectToRedisURL(raw string) (*redis.Client, error) {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	return bootstrap(redis.NewClient(opts))
}

// bootstrap pings the server and creates the consumer groups on both
// streams. An already existing group is fine.
func bootstrap(rdb *redis.Client) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	groups := []struct{ stream, group string }{
		{JobStream, JobGroup},
		{ResultStream, ResultGroup},
	}
	for _, g := range groups {
		err := rdb.XGroupCreateMkStream(ctx, g.stream, g.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			_ = rdb.Close()
			return nil, fmt.Errorf("xgroup create %s/%s: %w", g.stream, g.group, err)
		}
	}
	return rdb, nil
}

// WatchStreams consumes inspection jobs until ctx is cancelled. Batches are
// handled concurrently, bounded by Workers; each handled message is
// acknowledged and answered on the results stream whether the inspection
// succeeded or not.
func WatchStreams(ctx context.Context, rdb *redis.Client, inspector Inspector, opts Options) error {
	opts.fillDefaults()
	backoff := opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    JobGroup,
			Consumer: opts.Consumer,
			Streams:  []string{JobStream, ">"},
			Count:    int64(opts.BatchSize),
			Block:    opts.BlockTimeout,
			NoAck:    false,
		}).Result()
		switch {
		case err == redis.Nil:
			continue
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			warn(opts.Log, "stream read failed", "err", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
				if backoff < opts.BackoffMax {
					backoff *= 2
				}
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			backoff = opts.BackoffMin
		}

		g := new(errgroup.Group)
		g.SetLimit(opts.Workers)
		for _, stream := range res {
			for _, msg := range stream.Messages {
				g.Go(func() error {
					handle(ctx, rdb, inspector, msg, opts)
					return nil
				})
			}
		}
		_ = g.Wait()
	}
}

// handle runs one job end to end. Failures are reported on the results
// stream rather than returned: a job that cannot be inspected must not stay
// pending forever.
func handle(ctx context.Context, rdb *redis.Client, inspector Inspector, msg redis.XMessage, opts Options) {
	job, err := parseJob(msg)
	if err != nil {
		warn(opts.Log, "discarding malformed job", "id", msg.ID, "err", err)
		ack(ctx, rdb, msg.ID, opts)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, opts.MessageTimeout)
	defer cancel()

	debug(opts.Log, "job received", "id", msg.ID, "repo", job.Owner+"/"+job.Repo)
	result := ResultMessage{RequestID: job.RequestID, Owner: job.Owner, Repo: job.Repo}
	merged, err := inspector.Inspect(jobCtx, job.Owner, job.Repo)
	if err != nil {
		result.Error = err.Error()
		warn(opts.Log, "inspection failed", "id", msg.ID, "repo", job.Owner+"/"+job.Repo, "err", err)
	} else {
		result.Ok = true
		result.Result = merged
	}

	publish(ctx, rdb, result, opts)
	ack(ctx, rdb, msg.ID, opts)
}

func parseJob(msg redis.XMessage) (JobMessage, error) {
	var job JobMessage
	job.Owner, _ = msg.Values["owner"].(string)
	job.Repo, _ = msg.Values["repo"].(string)
	job.RequestID, _ = msg.Values["request_id"].(string)
	if job.Owner == "" || job.Repo == "" {
		return JobMessage{}, fmt.Errorf("message %s is missing owner or repo", msg.ID)
	}
	return job, nil
}

func publish(ctx context.Context, rdb *redis.Client, result ResultMessage, opts Options) {
	payload, err := json.Marshal(result)
	if err != nil {
		warn(opts.Log, "result encode failed", "request_id", result.RequestID, "err", err)
		return
	}
	err = rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: ResultStream,
		MaxLen: opts.ResultMaxLen,
		Approx: true,
		Values: map[string]any{"payload": string(payload)},
	}).Err()
	if err != nil {
		warn(opts.Log, "result publish failed", "request_id", result.RequestID, "err", err)
	}
}

func ack(ctx context.Context, rdb *redis.Client, id string, opts Options) {
	if err := rdb.XAck(ctx, JobStream, JobGroup, id).Err(); err != nil {
		warn(opts.Log, "ack failed", "id", id, "err", err)
	}
}

func warn(l Logger, msg string, keyvals ...interface{}) {
	if l != nil {
		l.Warn(msg, keyvals...)
	}
}

func debug(l Logger, msg string, keyvals ...interface{}) {
	if l != nil {
		l.Debug(msg, keyvals...)
	}
}
