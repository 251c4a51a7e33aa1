package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shardhub/collab"
	"shardhub/collab/application"
	"shardhub/collab/domain"
	"shardhub/collab/infra"
	"shardhub/eventstats"
	"shardhub/middleware/ratelimit"
	rlinfra "shardhub/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "hub",
		Short:         "Serve collaborative documents, one actor per shard",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(configPath)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "YAML config file (env vars override it)")
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func run(ctx context.Context, cfg config) (err error) {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	var rdb *redis.Client
	if cfg.needsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { err = multierr.Append(err, rdb.Close()) }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, perr := rdb.Ping(pingCtx).Result()
		cancel()
		if perr != nil {
			return fmt.Errorf("redis ping: %w", perr)
		}
	}

	blobs, err := openBlobStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, blobs.Close()) }()

	stats, events := newRecorder(cfg, rdb)

	store := application.DocumentStore{Blobs: blobs, SeedTables: cfg.SeedTables}
	registry := application.NewRegistry(func(key domain.ShardKey) *application.Actor {
		return application.NewActor(key, store, application.ActorOptions{Logger: log, Stats: stats})
	}, application.WithIdleTimeout(cfg.IdleTimeout))
	defer registry.Close()

	hub := &application.Hub{
		Registry:   registry,
		Logger:     log,
		Stats:      stats,
		SendBuffer: cfg.SessionBuffer,
	}
	if cfg.FrameRPS > 0 {
		hub.NewPacer = func() application.Pacer { return rlinfra.NewFramePacer(cfg.FrameRPS, cfg.FrameBurst) }
	}

	h := collab.NewRouter(collab.Options{
		Hub:            hub,
		Resolver:       application.Resolver{QueryParam: cfg.IdentityParam},
		Logger:         log,
		Events:         events,
		AllowAnyOrigin: cfg.AllowAnyOrigin,
	})
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.ConcurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.ConcurrencyTimeout,
	})(h)

	limiter := rlinfra.NewFixedWindowStore(rlinfra.WithLimit(cfg.RateLimit), rlinfra.WithWindow(cfg.RateWindow))
	if cfg.RateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Store:               limiter,
			Stats:               stats,
			Logger:              log,
			TrustXForwardedFor:  cfg.TrustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			AddRateLimitHeaders: cfg.AddHeaders,
		})(h)
	}

	// sem WriteTimeout: conexões WebSocket vivem mais que qualquer limite por
	// requisição; o WSConn aplica deadline por frame.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info("hub listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("rate_enabled", cfg.RateEnabled),
		zap.Int("rate_limit", cfg.RateLimit),
		zap.Duration("rate_window", cfg.RateWindow),
		zap.Int("concurrency_max", cfg.ConcurrencyMax),
		zap.Duration("idle_timeout", cfg.IdleTimeout),
		zap.Strings("seed_tables", cfg.SeedTables),
	)

	g, gctx := errgroup.WithContext(ctx)
	limiter.StartJanitor(gctx, cfg.RateSweep)
	registry.StartJanitor(gctx, cfg.EvictEvery)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// sessões WebSocket são conexões sequestradas: Shutdown não as vê
		registry.Close()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("hub stopped", zap.Error(err))
	return err
}

// newRecorder devolve o recorder de eventos e, quando ele é em memória, o
// mesmo valor tipado para o /stats.
func newRecorder(cfg config, rdb redis.Cmdable) (eventstats.Recorder, *eventstats.MemoryRecorder) {
	if !cfg.StatsEnabled {
		return eventstats.Nop{}, nil
	}
	if cfg.StatsBackend == "redis" {
		return eventstats.NewRedisRecorder(rdb,
			eventstats.WithPrefix(cfg.StatsPrefix),
			eventstats.WithTTL(cfg.StatsTTL),
			eventstats.WithBucket(cfg.StatsBucket),
			eventstats.WithRedisTrackSubjects(cfg.StatsTrackSubjects),
		), nil
	}
	mem := eventstats.NewMemoryRecorder(eventstats.WithTrackSubjects(cfg.StatsTrackSubjects))
	return mem, mem
}

func openBlobStore(ctx context.Context, cfg config, rdb *redis.Client) (domain.BlobStore, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := infra.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		return s, nil
	case "redis":
		return infra.NewRedisBlobStore(rdb,
			infra.WithKeyPrefix(cfg.RedisPrefix),
			infra.WithDocumentTTL(cfg.DocumentTTL),
		), nil
	default:
		return infra.NewMemoryBlobStore(), nil
	}
}
