package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chat-client/internal/api"
	"chat-client/internal/auth"
	"chat-client/internal/config"
	"chat-client/internal/database"
	"chat-client/internal/handlers"
	"chat-client/internal/metrics"
	"chat-client/internal/services"
	"chat-client/internal/store"
	"chat-client/internal/websocket"
	"chat-client/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app wires the client core together for one CLI invocation.
type app struct {
	cfg      *config.Config
	api      *api.Client
	manager  *websocket.Manager
	queue    *websocket.RoomQueue
	messages *store.MessageStore
	rooms    *services.RoomService
	chat     *services.ChatService
	router   *handlers.Router
	gate     *auth.Gate
	auth     *auth.Service
	archive  *database.PostgresDB

	metricsServer *http.Server
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	a.api = api.NewClient(cfg.Server.APIURL, cfg.Server.HTTPTimeout)
	a.manager = websocket.NewManager(websocket.Options{
		URL:              cfg.Server.WebSocketURL,
		BaseDelay:        cfg.Reconnect.BaseDelay,
		MaxAttempts:      cfg.Reconnect.MaxAttempts,
		DisableReconnect: cfg.Reconnect.MaxAttempts == 0,
		ReadLimit:        cfg.Server.ReadLimit,
		Metrics:          m,
	})
	a.queue = websocket.NewRoomQueue(a.manager)
	a.gate = auth.NewGate(a.manager, a.api)
	a.auth = auth.NewService(a.api, a.gate)

	selfID := func() string { return a.gate.Session().UserID() }
	a.messages = store.NewMessageStore()
	a.rooms = services.NewRoomService(a.api, selfID)
	a.router = handlers.NewRouter(a.messages, a.rooms, a.manager, selfID).WithMetrics(m)

	deps := services.ChatDeps{
		Connection:   a.manager,
		Queue:        a.queue,
		Rooms:        a.rooms,
		Messages:     a.messages,
		History:      a.api,
		SelfID:       selfID,
		HistoryLimit: cfg.Server.HistoryLimit,
	}

	if cfg.Database.URL != "" {
		db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
		if err != nil {
			a.manager.Close()
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			a.manager.Close()
			return nil, err
		}
		a.archive = db
		a.router.WithArchive(ctx, db)
		deps.Archive = db
	}

	a.chat = services.NewChatService(deps)
	a.manager.Subscribe(a.router.HandleFrame)

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		a.metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error: %v", err)
			}
		}()
		logger.Info("Metrics available on http://%s/metrics", cfg.Metrics.Addr)
	}

	return a, nil
}

// authenticate resumes the configured token, or logs in with the given credentials.
func (a *app) authenticate(ctx context.Context, token, email, password string) (*auth.Session, error) {
	if token == "" {
		token = a.cfg.Session.Token
	}
	if email != "" {
		return a.auth.Login(ctx, email, password)
	}
	if token == "" {
		return nil, errors.New("no session: pass --token, set CHAT_TOKEN, or log in with --email")
	}
	return a.auth.Resume(token)
}

func (a *app) Close() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			logger.Warn("Metrics server shutdown: %v", err)
		}
		cancel()
	}
	if err := a.manager.Close(); err != nil {
		logger.Warn("Connection shutdown: %v", err)
	}
	if a.archive != nil {
		a.archive.Close()
	}
}
