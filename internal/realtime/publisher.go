// Copyright 2025 Foodie Chat Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package realtime pushes chat events to connected clients through Redis
// pub/sub. Publishing is fire-and-forget from the caller's perspective.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher pushes named events onto named channels
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload interface{}) error
	Close() error
}

// Event is the wire envelope published to a channel
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// RedisPublisher publishes events through Redis pub/sub
type RedisPublisher struct {
	logger *zap.Logger
	rdb    *goredis.Client
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(addr string, logger *zap.Logger) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisPublisher{
		logger: logger,
		rdb:    rdb,
	}, nil
}

// Publish sends one event to the channel's subscribers
func (p *RedisPublisher) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	data, err := json.Marshal(Event{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Published event",
		zap.String("channel", channel),
		zap.String("event", event))

	return nil
}

// Close releases the Redis connection
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// ConversationChannel builds the channel name for a conversation's events
func ConversationChannel(prefix, conversationID string) string {
	return fmt.Sprintf("%s-%s", prefix, conversationID)
}
