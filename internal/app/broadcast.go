// internal/app/broadcast.go
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shrimpsizemoose/trekker/logger"
)

// Broadcaster tells peer instances that a cohort's data changed so they
// reload their snapshot. Messages look like "<instance>:<cohort id>".
type Broadcaster struct {
	enabled  bool
	redis    *redis.Client
	channel  string
	instance string
}

func NewBroadcaster(config *Config) (*Broadcaster, error) {
	if config.Cache.RedisURL == "" {
		return &Broadcaster{enabled: false}, nil
	}

	opt, err := redis.ParseURL(config.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Broadcaster{
		enabled:  true,
		redis:    client,
		channel:  config.Cache.Channel,
		instance: uuid.NewString(),
	}, nil
}

func (b *Broadcaster) Enabled() bool {
	return b != nil && b.enabled
}

func (b *Broadcaster) Publish(ctx context.Context, cohortID int64) error {
	if !b.Enabled() {
		return nil
	}
	if err := b.redis.Publish(ctx, b.channel, formatChange(b.instance, cohortID)).Err(); err != nil {
		return fmt.Errorf("failed to publish change for cohort %d: %w", cohortID, err)
	}
	return nil
}

// Listen calls onChange for every change published by another instance
// until ctx is done.
func (b *Broadcaster) Listen(ctx context.Context, onChange func(cohortID int64)) error {
	if !b.Enabled() {
		return nil
	}

	sub := b.redis.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			instance, cohortID, err := parseChange(msg.Payload)
			if err != nil {
				logger.Error.Printf("Ignoring malformed change message %q: %v", msg.Payload, err)
				continue
			}
			if instance == b.instance {
				continue
			}
			logger.Debug.Printf("Cohort %d changed on instance %s", cohortID, instance)
			onChange(cohortID)
		}
	}
}

func (b *Broadcaster) Close() error {
	if b != nil && b.redis != nil {
		return b.redis.Close()
	}
	return nil
}

func formatChange(instance string, cohortID int64) string {
	return instance + ":" + strconv.FormatInt(cohortID, 10)
}

func parseChange(payload string) (string, int64, error) {
	idx := strings.LastIndex(payload, ":")
	if idx <= 0 {
		return "", 0, fmt.Errorf("missing instance prefix")
	}
	cohortID, err := strconv.ParseInt(payload[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad cohort id: %w", err)
	}
	return payload[:idx], cohortID, nil
}
