// Package redis publishes engine events to Redis for out-of-process
// observers. Strictly best-effort: a Redis failure is logged and swallowed,
// never surfaced to the engine.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chartreplay/internal/model"
)

const (
	eventStream    = "replay:events"
	eventStreamMax = 10000
	latestChannel  = "pub:replay:latest"
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes engine events to a capped Redis stream and mirrors the
// newest one on PubSub for live subscribers.
type Publisher struct {
	client *goredis.Client
}

// New creates a Publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
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
	return &Publisher{client: client}, nil
}

// Run drains events from eventCh into Redis. Blocks until ctx is cancelled
// or the channel is closed.
func (p *Publisher) Run(ctx context.Context, eventCh <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			p.publish(ctx, ev)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev model.Event) {
	payload := ev.JSON()

	if err := p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: eventStream,
		MaxLen: eventStreamMax,
		Approx: true,
		Values: map[string]interface{}{
			"type": string(ev.Type),
			"seq":  ev.Seq,
			"data": payload,
		},
	}).Err(); err != nil {
		log.Printf("[redis] XADD failed for seq=%d: %v", ev.Seq, err)
	}

	if err := p.client.Publish(ctx, latestChannel, payload).Err(); err != nil {
		log.Printf("[redis] publish failed for seq=%d: %v", ev.Seq, err)
	}
}

// Close releases the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
