package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tessner/clack/internal/config"
	"github.com/tessner/clack/internal/database"
	"github.com/tessner/clack/internal/presence"
	postgresrepo "github.com/tessner/clack/internal/repository/postgres"
	"github.com/tessner/clack/internal/service"
	"github.com/tessner/clack/internal/transport/http/handlers"
	"github.com/tessner/clack/internal/transport/http/middleware"
	"github.com/tessner/clack/internal/transport/ws"
	"github.com/tessner/clack/internal/typing"
	"github.com/tessner/clack/pkg/ids"
)

func main() {
	cfg := config.Load()
	ids.SetNodeID(cfg.NodeID)

	// Database
	pool, err := database.Connect(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	log.Println("Connected to database")

	// Presence mirror is optional: no Redis address means in-memory only.
	var mirror presence.Mirror
	if cfg.RedisAddr != "" {
		redisMirror, err := presence.NewRedisMirror(cfg.RedisAddr, cfg.PresenceTTL)
		if err != nil {
			log.Fatal(err)
		}
		defer redisMirror.Close()
		mirror = redisMirror
		log.Println("Connected to redis")
	}

	// Repositories
	channelRepo := postgresrepo.NewChannelRepo(pool)
	messageRepo := postgresrepo.NewMessageRepo(pool)

	// Services
	channelService := service.NewChannelService(channelRepo)
	messageService := service.NewMessageService(messageRepo, channelRepo)

	// Real-time core
	hub := ws.NewHub()
	messageService.SetNotifier(ws.NewHubNotifier(hub))

	registry := presence.NewRegistry(mirror)

	var router *ws.Router
	tracker := typing.NewTracker(typing.Conf{}, func(channelID, userID int64) {
		router.TypingExpired(channelID, userID)
	})
	router = ws.NewRouter(hub, messageService, channelRepo, registry, tracker)

	// Handlers
	channelHandler := handlers.NewChannelHandler(channelService, messageService)
	messageHandler := handlers.NewMessageHandler(messageService)
	presenceHandler := handlers.NewPresenceHandler(registry)

	// Auth middleware
	auth := middleware.Auth(cfg.JWTSecret)

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("GET /ws", ws.ServeWS(hub, router, cfg.JWTSecret))

	// Protected - Channels
	mux.Handle("POST /api/v1/channels", auth(http.HandlerFunc(channelHandler.Create)))
	mux.Handle("GET /api/v1/channels", auth(http.HandlerFunc(channelHandler.List)))
	mux.Handle("GET /api/v1/channels/{id}", auth(http.HandlerFunc(channelHandler.Get)))
	mux.Handle("PATCH /api/v1/channels/{id}", auth(http.HandlerFunc(channelHandler.Update)))
	mux.Handle("DELETE /api/v1/channels/{id}", auth(http.HandlerFunc(channelHandler.Archive)))
	mux.Handle("POST /api/v1/channels/direct", auth(http.HandlerFunc(channelHandler.GetOrCreateDirect)))
	mux.Handle("POST /api/v1/channels/{id}/read", auth(http.HandlerFunc(channelHandler.MarkRead)))

	// Protected - Channel Members
	mux.Handle("POST /api/v1/channels/{id}/members", auth(http.HandlerFunc(channelHandler.AddMember)))
	mux.Handle("DELETE /api/v1/channels/{id}/members/{uid}", auth(http.HandlerFunc(channelHandler.RemoveMember)))
	mux.Handle("GET /api/v1/channels/{id}/members", auth(http.HandlerFunc(channelHandler.ListMembers)))

	// Protected - Messages (history/backlog; live traffic goes over /ws)
	mux.Handle("GET /api/v1/channels/{id}/messages", auth(http.HandlerFunc(messageHandler.List)))
	mux.Handle("GET /api/v1/channels/{id}/messages/search", auth(http.HandlerFunc(messageHandler.Search)))
	mux.Handle("GET /api/v1/messages/{id}/replies", auth(http.HandlerFunc(messageHandler.ListThread)))
	mux.Handle("GET /api/v1/messages/{id}/reactions", auth(http.HandlerFunc(messageHandler.ListReactions)))
	mux.Handle("POST /api/v1/messages/{id}/attachments", auth(http.HandlerFunc(messageHandler.RegisterAttachment)))

	// Protected - Presence
	mux.Handle("GET /api/v1/presence", auth(http.HandlerFunc(presenceHandler.Get)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{Addr: addr, Handler: middleware.CORS(mux)}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error { return tracker.Run(ctx) })
	g.Go(func() error {
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal(err)
	}
}
