package redisclient

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const jobsChannel = "jobs.enqueued"

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Client{redisdb: redisdb}
}

// this ping function checks redis connectivity

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// NotifyJobEnqueued pokes subscribed workers so a freshly committed job gets
// picked up ahead of the next poll tick. Fire and forget.
func (c *Client) NotifyJobEnqueued(ctx context.Context) error {
	return c.redisdb.Publish(ctx, jobsChannel, "1").Err()
}

// SubscribeJobEnqueued returns a channel that receives one signal per nudge.
// The subscription closes the channel when ctx is cancelled.
func (c *Client) SubscribeJobEnqueued(ctx context.Context) <-chan struct{} {
	sub := c.redisdb.Subscribe(ctx, jobsChannel)
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		ch := sub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}

				// coalesce bursts into a single pending signal
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	return out
}
