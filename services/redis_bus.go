package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"duel-arena/models"

	"github.com/redis/go-redis/v9"
)

// RedisBus shares match events between arena instances over Redis pub/sub.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus connects to the Redis server at url (redis://...).
func NewRedisBus(ctx context.Context, url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBus{client: client}, nil
}

// NewRedisBusFromClient wraps an existing client.
func NewRedisBusFromClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, evt models.MatchEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return b.client.Publish(ctx, topic, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan models.MatchEvent, func(), error) {
	ps := b.client.Subscribe(ctx, topic)
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan models.MatchEvent, 64)
	done := make(chan struct{})
	msgs := ps.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt models.MatchEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					log.Printf("⚠️ [EVENTS] bad payload on %s: %v", topic, err)
					continue
				}
				select {
				case out <- evt:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
