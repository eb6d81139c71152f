package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kolson/planner/backend/internal/config"
	"github.com/kolson/planner/backend/internal/handler"
	chatHandler "github.com/kolson/planner/backend/internal/handler/chat"
	"github.com/kolson/planner/backend/internal/llm"
	"github.com/kolson/planner/backend/internal/logger"
	"github.com/kolson/planner/backend/internal/model/persona"
	"github.com/kolson/planner/backend/internal/service/ai"
	"github.com/kolson/planner/backend/internal/service/brief"
	"github.com/kolson/planner/backend/internal/service/chat"
	"github.com/kolson/planner/backend/internal/service/notify"
	"github.com/kolson/planner/backend/internal/service/ratelimit"
	"github.com/kolson/planner/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Logger.Warn("failed to load .env file, continuing with system environment variables only", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatal("failed to load configuration", "err", err)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	log := logger.For("main")

	assistant := persona.Default(cfg.Site.OwnerName)

	// Reply generation and extraction share one chat model.
	var aiService *ai.Service
	var extractor *brief.Extractor
	if cfg.AI.Enabled() {
		chatModel, err := llm.NewChatModel(ctx, cfg.AI)
		if err != nil {
			log.Warn("failed to initialize chat model, chat will answer 500", "err", err)
		} else {
			aiService, err = ai.NewService(ctx, chatModel, &assistant, cfg.AI)
			if err != nil {
				log.Fatal("failed to initialize reply generator", "err", err)
			}
			extractor, err = brief.NewExtractor(ctx, chatModel, brief.ExtractorConfig{
				MinUserTurns: cfg.Brief.MinUserTurns,
				MaxTokens:    cfg.AI.ExtractMaxTokens,
				Timeout:      cfg.AI.Timeout,
			})
			if err != nil {
				log.Fatal("failed to initialize brief extractor", "err", err)
			}
			log.Info("AI services initialized", "provider", cfg.AI.Provider)
		}
	} else {
		log.Warn("language model credentials missing, chat will answer 500", "missing", cfg.AI.MissingCredential())
	}

	var (
		chatService  *chat.Service
		briefService *brief.Service
		dispatcher   *brief.Dispatcher
	)
	if cfg.Storage.Enabled {
		st, err := store.NewSQLiteStore(cfg.Storage.DatabaseURL)
		if err != nil {
			log.Fatal("failed to open store", "dsn", cfg.Storage.DatabaseURL, "err", err)
		}
		defer func() {
			if err := st.Close(); err != nil {
				log.Warn("failed to close store", "err", err)
			}
		}()

		notifier := notify.New(cfg.Notify)
		if !notifier.Enabled() {
			log.Info("RESEND_API_KEY or NOTIFY_TO not set, share notifications disabled")
		}

		dispatcher = brief.NewDispatcher(cfg.Brief.Workers, cfg.Brief.QueueSize)
		chatService = chat.NewService(st)
		briefService = brief.NewService(st, extractor, dispatcher, notifier, brief.Config{
			MergeFields:   cfg.Brief.MergeFields,
			MessageWindow: cfg.Brief.MessageWindow,
			PublicBaseURL: cfg.Site.PublicBaseURL,
		})
		log.Info("storage enabled", "dsn", cfg.Storage.DatabaseURL, "merge_fields", cfg.Brief.MergeFields)
	} else {
		log.Warn("storage disabled, sessions unavailable and chat is stateless")
	}

	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.MaxRequests)
	go limiter.RunSweeper(ctx, cfg.RateLimit.SweepInterval)

	router := handler.NewRouter(handler.Dependencies{
		Assistant: &assistant,
		Chat: chatHandler.Options{
			AI:                 aiService,
			MissingCredential:  cfg.AI.MissingCredential(),
			Limiter:            limiter,
			HistoryLimit:       cfg.AI.HistoryLimit,
			StatelessTurnLimit: cfg.AI.StatelessTurnLimit,
			OwnerName:          cfg.Site.OwnerName,
		},
		Chats:          chatService,
		Briefs:         briefService,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)

	if dispatcher != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := dispatcher.Close(drainCtx); err != nil {
			log.Warn("background tasks cut short", "err", err)
		}
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          logger.Standard(),
	}

	logger.Logger.Info("planner backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Logger.Fatal("server error", "err", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
