package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"FluxMessenger/server/internal/appMiddleware"
	"FluxMessenger/server/internal/config"
	"FluxMessenger/server/internal/db"
	"FluxMessenger/server/internal/handlers"
	"FluxMessenger/server/internal/pool"
	"FluxMessenger/server/internal/services"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	ctx := context.Background()

	if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	dbPool, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer dbPool.Close()

	clock := clockwork.NewRealClock()

	userService := services.NewUserService(dbPool, log)
	readStateService := services.NewReadStateService(dbPool, log)
	conversationService := services.NewConversationService(dbPool, userService, readStateService, clock, log)
	messageService := services.NewMessageService(dbPool, conversationService, clock, log)
	threadService := services.NewThreadService(dbPool, messageService, conversationService, log)
	summaryProvider := services.NewSummaryProvider(cfg.SummaryURL, log)
	activityLogger := services.NewActivityLogger(log)

	clientPool := pool.NewPool(conversationService, log)

	h := handlers.New(
		conversationService,
		messageService,
		readStateService,
		threadService,
		userService,
		summaryProvider,
		activityLogger,
		clientPool,
		cfg.JWTSecret,
		log,
	)

	r := chi.NewRouter()

	r.Use(appMiddleware.Cors)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(appMiddleware.Auth(cfg.JWTSecret, log))

		r.Post("/api/conversations", h.CreateConversation)
		r.Get("/api/conversations", h.ListConversations)
		r.Get("/api/conversations/{conversation_id}", h.GetConversation)
		r.Patch("/api/conversations/{conversation_id}", h.UpdateConversation)
		r.Get("/api/conversations/{conversation_id}/members", h.GetMembers)
		r.Post("/api/conversations/{conversation_id}/members", h.AddMember)
		r.Delete("/api/conversations/{conversation_id}/members/{user_id}", h.RemoveMember)

		r.Get("/api/conversations/{conversation_id}/messages", h.ListMessages)
		r.Post("/api/conversations/{conversation_id}/messages", h.CreateMessage)
		r.Patch("/api/messages/{message_id}", h.EditMessage)
		r.Delete("/api/messages/{message_id}", h.DeleteMessage)
		r.Post("/api/messages/{message_id}/reactions", h.AddReaction)
		r.Delete("/api/messages/{message_id}/reactions", h.RemoveReaction)

		r.Get("/api/conversations/{conversation_id}/threads/{message_id}", h.GetThread)
		r.Get("/api/conversations/{conversation_id}/threads/{message_id}/summary", h.GetThreadSummary)

		r.Post("/api/conversations/{conversation_id}/read", h.MarkRead)
		r.Get("/api/conversations/{conversation_id}/read-states", h.GetReadStates)
		r.Get("/api/conversations/{conversation_id}/unread-count", h.GetUnreadCount)

		r.Get("/api/presence", h.Presence)

		r.Get("/api/conversations/{conversation_id}/pins", h.ListPins)
		r.Post("/api/conversations/{conversation_id}/pins", h.PinMessage)
		r.Delete("/api/conversations/{conversation_id}/pins/{message_id}", h.UnpinMessage)

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RateLimit(cfg.SearchRatePerMinute))
			r.Get("/api/search/messages", h.SearchMessages)
			r.Get("/api/conversations/{conversation_id}/summary", h.GetConversationSummary)
		})
	})

	r.Get("/ws", h.WebSocket)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Info().Str("addr", cfg.HTTPAddr).Msg("server started")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	log.Info().Msg("stopping the server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("server stopped")
}
