package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/product-resolver/internal/api"
	"github.com/maltedev/product-resolver/internal/browser"
	"github.com/maltedev/product-resolver/internal/config"
	"github.com/maltedev/product-resolver/internal/database"
	"github.com/maltedev/product-resolver/internal/fetch"
	"github.com/maltedev/product-resolver/internal/jobs"
	"github.com/maltedev/product-resolver/internal/queue"
	"github.com/maltedev/product-resolver/internal/ratelimit"
	"github.com/maltedev/product-resolver/internal/resolver"
	"github.com/maltedev/product-resolver/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("resolver api stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("resolver api stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	fetcher, closeFetcher, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	engine := resolver.New(fetcher, resolver.WithLogger(logger))

	var redisClient *redis.Client
	if cfg.Queue.Type == config.QueueTypeRedis || cfg.RelayActive() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	var (
		store snapshot.Store
		relay *database.Relay
	)
	switch cfg.Snapshot.Store {
	case config.SnapshotStoreFile:
		fileStore, err := snapshot.NewFileStore(cfg.Snapshot.FilePath)
		if err != nil {
			return err
		}
		store = fileStore
		logger.Info("using file snapshot store", "path", cfg.Snapshot.FilePath)
	default:
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnLife: cfg.Database.MaxConnLife,
			MaxConnIdle: cfg.Database.MaxConnIdle,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}

		var outbox *database.OutboxRepository
		if cfg.RelayActive() {
			outbox = database.NewOutboxRepository(db, cfg.Relay.Stream)
			relay = database.NewRelay(outbox, redisClient, logger, database.RelayConfig{
				PollInterval: cfg.Relay.PollInterval,
				BatchSize:    cfg.Relay.BatchSize,
			})
		}
		store = snapshot.NewPostgresStore(db, outbox, logger)
	}

	var q queue.Queue
	if cfg.Queue.Type == config.QueueTypeRedis {
		q = queue.NewRedisQueue(redisClient, cfg.Queue.Key, cfg.Worker.PopTimeout)
	} else {
		q = queue.NewMemoryQueue(cfg.Queue.MaxSize)
	}
	defer q.Close()

	var handlerOpts []api.Option
	if relay != nil {
		handlerOpts = append(handlerOpts, api.WithOutbox(relay))
	}

	var worker *jobs.Worker
	if cfg.Worker.Enabled {
		limiter := ratelimit.NewHostLimiter(cfg.Worker.HostRate, cfg.Worker.HostBurst)
		worker = jobs.NewWorker(q, engine, store, limiter, logger, jobs.Config{
			Concurrency:  cfg.Worker.Concurrency,
			TaskDeadline: cfg.Worker.TaskDeadline,
		})
		handlerOpts = append(handlerOpts, api.WithWorker(worker))
	}

	handlers := api.NewHandlers(engine, store, q, logger, handlerOpts...)
	router := api.NewRouter(handlers, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "addr", server.Addr, "fetch_mode", cfg.Resolver.FetchMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if worker != nil {
		g.Go(func() error {
			return ignoreCanceled(worker.Start(gctx))
		})
	}

	if relay != nil {
		g.Go(func() error {
			return ignoreCanceled(relay.Start(gctx))
		})
	}

	return g.Wait()
}

func newFetcher(cfg *config.Config, logger *slog.Logger) (fetch.Fetcher, func(), error) {
	if cfg.Resolver.FetchMode != config.FetchModeBrowser {
		f := fetch.New(&fetch.Options{
			Timeout:      cfg.Resolver.Timeout(),
			UserAgent:    cfg.Resolver.UserAgent,
			MaxBodyBytes: cfg.Resolver.MaxBodyBytes,
		})
		return f, func() {}, nil
	}

	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Resolver.Timeout()
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	if cfg.Resolver.UserAgent != "" {
		opts.UserAgent = cfg.Resolver.UserAgent
	}

	b, err := browser.New(opts, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	return b, func() {
		if err := b.Close(); err != nil {
			logger.Error("failed to close browser", "error", err)
		}
	}, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
