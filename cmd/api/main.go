// Package main is the entry point for the session service.
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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/realorai/session-service/internal/cache"
	"github.com/realorai/session-service/internal/config"
	"github.com/realorai/session-service/internal/handler"
	"github.com/realorai/session-service/internal/llm"
	natsclient "github.com/realorai/session-service/internal/nats"
	"github.com/realorai/session-service/internal/rating"
	"github.com/realorai/session-service/internal/responder"
	"github.com/realorai/session-service/internal/service"
	"github.com/realorai/session-service/internal/session"
	"github.com/realorai/session-service/internal/store"
	"github.com/realorai/session-service/pkg/logger"
	"github.com/realorai/session-service/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "session-service: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.ForEnv(cfg.Env, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	log.Info("starting session service", zap.String("env", cfg.Env))

	ctx := context.Background()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(ctx, "session-service", cfg.Tracing.Endpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	checks := make(map[string]handler.Pinger)

	// Persistence
	var st store.Store
	if cfg.Database.URL != "" {
		pg, err := store.OpenPostgres(store.PostgresConfig{
			DSN:          cfg.Database.URL,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			ConnLifetime: cfg.Database.ConnLifetime,
			AutoMigrate:  cfg.Database.AutoMigrate,
			Debug:        cfg.Env == "development",
		})
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()

		if cfg.Database.AutoMigrate {
			if err := pg.SeedPersonas(ctx, store.DefaultPersonas()); err != nil {
				log.Warn("failed to seed personas", zap.Error(err))
			}
		}
		st = pg
		log.Info("using postgres store")
	} else {
		st = store.NewMemory(store.DefaultPersonas(), cfg.Rating.Initial)
		log.Info("DATABASE_URL not set, using in-memory store")
	}
	checks["store"] = st

	// Profile cache
	var profileCache cache.ProfileCache
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.ProfileTTL)
		if err != nil {
			log.Warn("redis unavailable, using in-memory profile cache", zap.Error(err))
			profileCache = cache.NewMemory(cfg.Redis.ProfileTTL)
		} else {
			defer func() { _ = rc.Close() }()
			profileCache = rc
			checks["redis"] = rc
		}
	} else {
		profileCache = cache.NewMemory(cfg.Redis.ProfileTTL)
	}

	// Event log
	var sink session.EventSink = session.NopSink{}
	var transcripts service.TranscriptReader
	if cfg.NATS.URL != "" {
		nc, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATS.URL,
			CAFile:   cfg.NATS.CAFile,
			CertFile: cfg.NATS.CertFile,
			KeyFile:  cfg.NATS.KeyFile,
			Token:    cfg.NATS.Token,
		}, log)
		if err != nil {
			return err
		}
		defer nc.Close()

		archive := natsclient.NewArchive(nc)
		if err := archive.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
		sink = archive
		transcripts = archive
		checks["nats"] = nc
	} else {
		log.Info("NATS_URL not set, session event log disabled")
	}

	// Persona responder
	llmClient, err := llm.NewClient(ctx, llm.Config{
		Provider: llm.Provider(cfg.LLM.Provider),
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		llmClient = nil
		log.Warn("no LLM credentials, personas will reply with the fallback line")
	case err != nil:
		llmClient = nil
		log.Warn("failed to create LLM client, personas will reply with the fallback line", zap.Error(err))
	default:
		log.Info("LLM client ready", zap.String("provider", llmClient.Name()))
	}

	resp := responder.New(llmClient, responder.Config{
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		HistoryWindow: cfg.Session.HistoryWindow,
	}, log)

	updater := rating.NewUpdater(st, st, profileCache, log)

	sessionCfg := session.Config{
		Duration:         cfg.Session.Duration,
		MessageCap:       cfg.Session.MessageCap,
		MaxMessageLength: cfg.Session.MaxMessageLength,
		ResponseTimeout:  cfg.Session.ResponseTimeout,
		PersistTimeout:   cfg.Session.PersistTimeout,
		TickInterval:     cfg.Session.TickInterval,
		Deltas:           rating.Deltas{Win: cfg.Rating.WinDelta, Loss: cfg.Rating.LossDelta},
	}
	registry := session.NewRegistry(func(userID string) *session.Controller {
		return session.New(userID, sessionCfg, resp, updater, log, session.WithSink(sink))
	})
	defer registry.Close()

	reaper := session.NewReaper(registry, cfg.Session.ReaperSchedule, cfg.Session.IdleTimeout, cfg.Session.EvictAfter, log)
	if err := reaper.Start(); err != nil {
		return err
	}
	defer reaper.Stop()

	// Services
	matchSvc := service.NewMatchService(st, st, registry, service.MatchConfig{
		QueuePause:       cfg.Match.QueuePause,
		SearchPause:      cfg.Match.SearchPause,
		Timeout:          cfg.Match.Timeout,
		SampleSize:       cfg.Match.SampleSize,
		ErrorStatusClear: cfg.Match.ErrorStatusClear,
	}, log)
	defer matchSvc.Close()

	chatSvc := service.NewChatService(registry, updater, transcripts, log)

	router := handler.NewRouter(handler.Handlers{
		Health:    handler.NewHealthHandler(checks),
		Profile:   handler.NewProfileHandler(chatSvc, log),
		Match:     handler.NewMatchHandler(matchSvc, log),
		Session:   handler.NewSessionHandler(chatSvc, log),
		Stream:    handler.NewStreamHandler(chatSvc, cfg.Server.HeartbeatInterval, log),
		WebSocket: handler.NewWebSocketHandler(chatSvc, cfg.Server.AllowedOrigins, cfg.Server.HeartbeatInterval, log),
	}, handler.RouterConfig{
		JWTSecret:         cfg.Auth.JWTSecret,
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   cfg.RateLimit.Window,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	}, log)

	// Streams watch the base context so Shutdown does not wait on them.
	baseCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()

	// WriteTimeout defaults to zero so SSE and WebSocket responses stay open.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelStreams)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}
