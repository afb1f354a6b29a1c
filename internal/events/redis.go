package events

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/config"
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

// RedisPublisher PUBLISHes each event as JSON on "<prefix>.<type>".
type RedisPublisher struct {
	Client *redis.Client
	Prefix string
}

func NewRedisPublisher(cfg config.RedisConfig) *RedisPublisher {
	prefix := strings.TrimSpace(cfg.ChannelPrefix)
	if prefix == "" {
		prefix = "paynode.events"
	}
	return &RedisPublisher{
		Client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		Prefix: prefix,
	}
}

func (p *RedisPublisher) Channel(eventType string) string {
	return p.Prefix + "." + eventType
}

func (p *RedisPublisher) Publish(ctx context.Context, evt models.DomainEvent) error {
	if p == nil || p.Client == nil {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.Client.Publish(ctx, p.Channel(evt.Type), b).Err()
}

func (p *RedisPublisher) Close() error {
	if p == nil || p.Client == nil {
		return nil
	}
	return p.Client.Close()
}
