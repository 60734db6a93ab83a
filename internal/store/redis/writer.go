// Package redis publishes the latest tick per instrument to Redis for
// downstream consumers, behind a circuit breaker so a Redis outage never
// slows the stream path.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tickstream/internal/model"
)

const defaultLatestTTL = 30 * time.Minute

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes latest-tick snapshots to Redis and publishes them for
// real-time subscribers.
type Writer struct {
	client *goredis.Client

	// ObserveWriteDur records write latency in seconds (for metrics). Optional.
	ObserveWriteDur func(seconds float64)
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// writeTick performs the pipelined write for one tick:
// SET tick:latest:<token> with TTL, then PUBLISH pub:tick:<token>.
func (w *Writer) writeTick(ctx context.Context, t model.Tick) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}

	token := strconv.FormatInt(t.InstrumentToken, 10)
	latestKey := "tick:latest:" + token
	pubsubCh := "pub:tick:" + token

	start := time.Now()
	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey, data, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, data)
	_, err = pipe.Exec(ctx)
	if w.ObserveWriteDur != nil {
		w.ObserveWriteDur(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("redis pipeline for token %s: %w", token, err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
