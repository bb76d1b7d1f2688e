package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"hostintel-bot/internal/access"
	"hostintel-bot/internal/catalog"
	"hostintel-bot/internal/common/config"
	"hostintel-bot/internal/common/database"
	"hostintel-bot/internal/common/logger"
	"hostintel-bot/internal/common/observability"
	"hostintel-bot/internal/dispatcher"
	"hostintel-bot/internal/searchapi"
	"hostintel-bot/internal/session"
	"hostintel-bot/internal/transport/telegram"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot (polling or webhook, per telegram.mode)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, buildLogger(cfg))
		},
	}
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(ctx context.Context, operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(operationName+" failed, retrying", map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

type pingCloser interface {
	Ping(ctx context.Context) error
	Close() error
}

// connect opens a client and pings it. A client that fails the ping is
// closed before the error is returned.
func connect[T pingCloser](ctx context.Context, open func() (T, error)) (T, error) {
	var zero T
	c, err := open()
	if err != nil {
		return zero, err
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return zero, err
	}
	return c, nil
}

func serve(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	log.Info("starting bot", map[string]interface{}{"version": version, "mode": cfg.Telegram.Mode})

	obs := observability.NewNoop()
	if cfg.Observability.MetricsEnabled {
		obs = observability.New(cfg.App.Name)
	}
	defer obs.Shutdown()

	if cfg.Observability.Tracing.Enabled {
		tracing, err := observability.NewTracing(cfg.App.Name, cfg.Observability.Tracing.JaegerEndpoint, cfg.Observability.Tracing.SampleRatio)
		if err != nil {
			return err
		}
		defer tracing.Shutdown()
	}

	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("template catalog: %w", err)
	}
	log.Info("template catalog loaded", map[string]interface{}{"templates": cat.Len()})

	users, err := allowList(ctx, cfg, log)
	if err != nil {
		return err
	}
	guard := access.NewGuard(users, log)

	dedupWindow := config.GetDuration(cfg.Session.DedupWindow)
	var dedup dispatcher.Deduper = dispatcher.NewMemoryDeduper(dedupWindow)
	if cfg.Session.DedupBackend == config.DedupRedis {
		var rc *database.RedisClient
		err := retryWithBackoff(ctx, func() error {
			var err error
			rc, err = connect(ctx, func() (*database.RedisClient, error) { return database.NewRedis(cfg.Database.Redis) })
			return err
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			return err
		}
		defer rc.Close()
		dedup = dispatcher.NewRedisDeduper(rc.GetClient(), dedupWindow)
		log.Info("Redis connected successfully", nil)
	}

	api := searchapi.NewClient(searchapi.NewConfig(cfg), log, obs)
	store := session.NewMemoryStore(config.GetDuration(cfg.Session.IdleTTL), config.GetDuration(cfg.Session.CleanupInterval))
	engine := session.NewEngine(session.NewConfig(cfg), cat, api, store, log)
	disp := dispatcher.NewDispatcher(guard, engine, cat, dedup, log)

	tg := newTelegramClient(cfg, log)
	queue := telegram.NewQueue(telegram.QueueConfig{Size: cfg.Telegram.QueueSize}, disp, tg, log)

	var ready atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/health", statusHandler(func() bool { return true }, "healthy"))
	mux.HandleFunc("/ready", statusHandler(ready.Load, "ready"))
	if cfg.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Telegram.Mode == config.ModeWebhook {
		mux.Handle(cfg.Telegram.WebhookPath, telegram.NewWebhookHandler(cfg.Telegram.WebhookSecret, queue, log))
	}
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", map[string]interface{}{"addr": cfg.Server.Listen})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Telegram.Mode == config.ModePolling {
		if err := tg.DeleteWebhook(ctx, false); err != nil {
			log.Warn("could not clear webhook before polling", map[string]interface{}{"error": err.Error()})
		}
		poller := telegram.NewPoller(tg, queue, cfg.Telegram.PollTimeout, log)
		g.Go(func() error { return poller.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		ready.Store(false)
		log.Info("shutdown signal received, draining", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown failed", map[string]interface{}{"error": err.Error()})
		}
		return queue.Close()
	})

	ready.Store(true)
	err = g.Wait()
	log.Info("bot stopped", nil)
	return err
}

// allowList merges the configured ids with the database table when enabled.
func allowList(ctx context.Context, cfg *config.Config, log logger.Logger) ([]int64, error) {
	users := cfg.Access.AuthorizedUsers
	if !cfg.Access.LoadFromDatabase {
		return access.Merge(users), nil
	}

	var pg *database.PostgresClient
	err := retryWithBackoff(ctx, func() error {
		var err error
		pg, err = connect(ctx, func() (*database.PostgresClient, error) { return database.NewPostgres(cfg.Database.Postgres) })
		return err
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		return nil, err
	}
	defer pg.Close()

	fromDB, err := access.LoadUsers(ctx, pg.GetDB())
	if err != nil {
		return nil, err
	}
	log.Info("authorized users loaded from database", map[string]interface{}{"count": len(fromDB)})
	return access.Merge(users, fromDB), nil
}

func newTelegramClient(cfg *config.Config, log logger.Logger) *telegram.Client {
	return telegram.NewClient(telegram.ClientConfig{
		BaseURL:    cfg.Telegram.BaseURL,
		Token:      cfg.Telegram.Token,
		Timeout:    config.GetDuration(cfg.Telegram.RequestTimeout),
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}, log)
}

func statusHandler(ok func() bool, status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		code := http.StatusOK
		body := status
		if !ok() {
			code = http.StatusServiceUnavailable
			body = "not " + status
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": body,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}
