package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Talkie/internal/adapters/amqp"
	"github.com/dkeye/Talkie/internal/adapters/auth"
	router "github.com/dkeye/Talkie/internal/adapters/http"
	"github.com/dkeye/Talkie/internal/adapters/signal"
	"github.com/dkeye/Talkie/internal/adapters/store"
	"github.com/dkeye/Talkie/internal/app/orch"
	"github.com/dkeye/Talkie/internal/config"
	"github.com/dkeye/Talkie/internal/core"
)

func main() {
	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func openStore(ctx context.Context, cfg config.Store) (core.MessageStore, io.Closer, error) {
	switch cfg.Driver {
	case config.DriverBadger:
		db, err := store.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	case config.DriverPostgres:
		pool, err := store.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		return pg, pg, nil
	}
	return store.NewMemory(), io.NopCloser(nil), nil
}

func run(ctx context.Context, cfg *config.Config) error {
	messages, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := closeStore.Close(); err != nil {
			log.Error().Err(err).Str("store", cfg.Store.Driver).Msg("close store")
		}
	}()

	opts := []orch.Option{
		orch.WithStoreTimeout(cfg.StoreTimeout),
		orch.WithMaxBodyLen(cfg.MaxBodyLen),
		orch.WithHistoryLimit(cfg.HistoryLimit),
	}
	if cfg.AMQP.URL != "" {
		journal, err := amqp.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return fmt.Errorf("call journal: %w", err)
		}
		defer func() { _ = journal.Close() }()
		opts = append(opts, orch.WithJournal(journal))
	}

	var tokens *auth.Manager
	if cfg.Auth.Secret != "" {
		if tokens, err = auth.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL); err != nil {
			return err
		}
	}

	reg := core.NewRegistry()
	bc := core.NewBroadcaster(reg,
		core.WithDeliveryTimeout(cfg.DeliveryTimeout),
		core.WithFanoutWorkers(cfg.FanoutWorkers),
	)
	o := orch.New(reg, core.NewCallMachine(), bc, messages, opts...)

	ws := signal.NewSignalWSController(o, signal.Settings{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
		ICEURLs:    cfg.ICEURLs,
	})
	ws.Auth = tokens
	ws.Limiter = signal.NewRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Interval)

	h := &router.Handlers{Orch: o, Auth: tokens, StoreDriver: cfg.Store.Driver}
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, h, ws),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Bool("auth", tokens != nil).Msg("Talkie server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
