// Command snapshot-consumer tails the snapshot event stream and logs every
// resolved product. It doubles as a reference consumer for downstream services.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/product-resolver/internal/config"
	"github.com/maltedev/product-resolver/internal/events"
	"github.com/maltedev/product-resolver/internal/snapshot"
)

func main() {
	group := flag.String("group", events.DefaultGroup, "Consumer group name")
	consumer := flag.String("consumer", hostnameOr(events.DefaultConsumer), "Consumer name within the group")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	c := events.NewConsumer(rdb, logResolved(logger), logger, events.Config{
		Stream:   cfg.Relay.Stream,
		Group:    *group,
		Consumer: *consumer,
	})

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}

func logResolved(logger *slog.Logger) events.Handler {
	return func(_ context.Context, e *events.Event) error {
		if e.Type != snapshot.EventResolved {
			logger.Debug("skipping event", "event_type", e.Type, "message_id", e.MessageID)
			return nil
		}

		payload, err := e.SnapshotResolved()
		if err != nil {
			return err
		}

		logger.Info("snapshot resolved",
			"snapshot_id", payload.ID,
			"url", payload.URL,
			"title", payload.Title,
			"price", payload.Price,
			"currency", payload.Currency,
			"resolved_at", payload.ResolvedAt)
		return nil
	}
}

func hostnameOr(fallback string) string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return fallback
}
