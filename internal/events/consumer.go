// Package events reads the snapshot events the outbox relay publishes.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/product-resolver/internal/snapshot"
)

const (
	DefaultGroup    = "snapshot-consumers"
	DefaultConsumer = "consumer-1"
	DefaultBlock    = 5 * time.Second
)

var ErrMalformedMessage = errors.New("malformed stream message")

// StreamClient is the subset of the redis client the consumer uses.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Event is the envelope written by the relay.
type Event struct {
	MessageID     string          `json:"-"`
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     string          `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      map[string]any  `json:"metadata"`
}

// Handler processes one event. Returning an error leaves the message
// unacknowledged so it is redelivered to the group.
type Handler func(ctx context.Context, event *Event) error

type Config struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
	Count    int64
}

type Consumer struct {
	client  StreamClient
	handler Handler
	config  Config
	logger  *slog.Logger
}

func NewConsumer(client StreamClient, handler Handler, logger *slog.Logger, config Config) *Consumer {
	if config.Group == "" {
		config.Group = DefaultGroup
	}
	if config.Consumer == "" {
		config.Consumer = DefaultConsumer
	}
	if config.Block <= 0 {
		config.Block = DefaultBlock
	}
	if config.Count <= 0 {
		config.Count = 10
	}
	return &Consumer{
		client:  client,
		handler: handler,
		config:  config,
		logger:  logger.With("component", "event_consumer", "stream", config.Stream),
	}
}

// Run reads the stream until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.config.Stream, c.config.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "group", c.config.Group, "consumer", c.config.Consumer)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *Consumer) poll(ctx context.Context) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.Group,
		Consumer: c.config.Consumer,
		Streams:  []string{c.config.Stream, ">"},
		Count:    c.config.Count,
		Block:    c.config.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			c.handle(ctx, message)
		}
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, message redis.XMessage) {
	event, err := Decode(message)
	if err != nil {
		// Poison messages are acked so they do not block the group.
		c.logger.Error("dropping malformed message", "message_id", message.ID, "error", err)
		c.ack(ctx, message.ID)
		return
	}

	if err := c.handler(ctx, event); err != nil {
		c.logger.Error("failed to handle event",
			"message_id", message.ID,
			"event_type", event.Type,
			"aggregate_id", event.AggregateID,
			"error", err)
		return
	}

	c.ack(ctx, message.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.config.Stream, c.config.Group, id).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "message_id", id, "error", err)
	}
}

// Decode parses the envelope stored in the message's data field.
func Decode(message redis.XMessage) (*Event, error) {
	data, ok := message.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing data field", ErrMalformedMessage)
	}

	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedMessage)
	}

	event.MessageID = message.ID
	return &event, nil
}

// SnapshotResolved decodes the payload of a resolved-snapshot event.
func (e *Event) SnapshotResolved() (*snapshot.ResolvedEvent, error) {
	var payload snapshot.ResolvedEvent
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &payload, nil
}
