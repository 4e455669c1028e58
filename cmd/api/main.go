// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fingle-ai/chat-platform/internal/broadcast"
	"github.com/fingle-ai/chat-platform/internal/cache"
	"github.com/fingle-ai/chat-platform/internal/config"
	"github.com/fingle-ai/chat-platform/internal/handler"
	"github.com/fingle-ai/chat-platform/internal/llm"
	"github.com/fingle-ai/chat-platform/internal/middleware"
	"github.com/fingle-ai/chat-platform/internal/scheduler"
	"github.com/fingle-ai/chat-platform/internal/service"
	"github.com/fingle-ai/chat-platform/pkg/logger"
	"github.com/fingle-ai/chat-platform/pkg/tracing"

	storepkg "github.com/fingle-ai/chat-platform/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Connect stores
	redisStore, err := storepkg.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to Redis", zap.Error(err))
		os.Exit(1)
	}
	defer redisStore.Close()

	pgStore, err := storepkg.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to Postgres", zap.Error(err))
		os.Exit(1)
	}
	defer pgStore.Close()

	// Broadcaster
	var broadcaster broadcast.Broadcaster
	switch cfg.BroadcastDriver {
	case "nats":
		broadcaster, err = broadcast.NewNATS(broadcast.NATSConfig{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log.Named("nats"))
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
	default:
		broadcaster = broadcast.NewRedis(redisStore)
	}
	defer broadcaster.Close()

	// Flush coordinator and scheduler
	coordinator := cache.NewCoordinator(redisStore, pgStore, int64(cfg.FlushBatchSize), log.Named("flush"))
	flushScheduler, err := scheduler.New(coordinator, cfg.FlushCron, log.Named("scheduler"))
	if err != nil {
		log.Error("invalid flush cron expression", zap.Error(err))
		os.Exit(1)
	}
	flushScheduler.Start()
	defer flushScheduler.Stop()

	// Message cache engine
	engine := cache.NewEngine(redisStore, pgStore, broadcaster, flushScheduler, cache.Options{
		TTL:       cfg.CacheTTL,
		BatchSize: int64(cfg.FlushBatchSize),
	}, log.Named("cache"))

	// LLM client
	var llmClient llm.Client
	if cfg.AnthropicAPIKey != "" || cfg.OpenAIAPIKey != "" {
		provider := llm.Provider(cfg.DefaultLLM)
		apiKey := cfg.AnthropicAPIKey
		if provider == llm.ProviderOpenAI {
			apiKey = cfg.OpenAIAPIKey
		}
		llmClient, err = llm.NewClient(provider, apiKey)
		if err != nil {
			log.Warn("failed to create LLM client, completions disabled", zap.Error(err))
		}
	}

	// Services
	conversationSvc := service.NewConversationService(pgStore, engine, log.Named("conversations"))
	chatSvc := service.NewChatService(engine, llmClient, log.Named("chat"))

	// Handlers
	healthHandler := handler.NewHealthHandler(redisStore, pgStore, broadcaster)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(chatSvc, conversationSvc, log)
	streamHandler := handler.NewStreamHandler(chatSvc, conversationSvc, broadcaster, log)
	cacheHandler := handler.NewCacheHandler(engine, coordinator, log)

	// Router
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Stream-URL", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Delete("/", conversationHandler.Delete)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)

				r.Get("/stream", streamHandler.Stream)
				r.Post("/stream", streamHandler.StreamWithMessage)
			})
		})

		r.Route("/admin/cache", func(r chi.Router) {
			r.Use(middleware.RequireScope(middleware.ScopeAdmin))

			r.Get("/stats", cacheHandler.Stats)
			r.Post("/flush", cacheHandler.Flush)
			r.Delete("/conversations/{id}", cacheHandler.ClearConversation)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
