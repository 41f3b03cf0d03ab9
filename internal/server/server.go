// ABOUTME: HTTP server wiring every component behind the REST and realtime API
// ABOUTME: Owns startup order, route registration, and the graceful shutdown sequence

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parley-im/parley/internal/auth"
	"github.com/parley-im/parley/internal/cleanup"
	"github.com/parley-im/parley/internal/config"
	"github.com/parley-im/parley/internal/conversation"
	"github.com/parley-im/parley/internal/ephemeral"
	"github.com/parley-im/parley/internal/mail"
	"github.com/parley-im/parley/internal/msgstore"
	"github.com/parley-im/parley/internal/pipeline"
	"github.com/parley-im/parley/internal/realtime"
	"github.com/parley-im/parley/internal/receipts"
	"github.com/parley-im/parley/internal/search"
	"github.com/parley-im/parley/internal/store"
)

// Server hosts the REST API, the realtime gateway, and the background
// workers over one HTTP listener.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	users store.Store
	msgs  msgstore.Store
	eph   ephemeral.Store

	tokens     *auth.TokenService
	auth       *auth.Service
	conv       *conversation.Service
	receipts   *receipts.Service
	search     *search.Service
	pipe       *pipeline.Pipeline
	manager    *realtime.ConnectionManager
	hub        *realtime.Hub
	realtime   *realtime.Handler
	reconciler *cleanup.Reconciler

	httpServer *http.Server
}

// New opens the three backing stores from config and wires the full server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	users, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening relational store: %w", err)
	}

	msgs, err := msgstore.NewMongoStore(ctx, cfg.MessageStore.URI, cfg.MessageStore.Database)
	if err != nil {
		users.Close()
		return nil, fmt.Errorf("opening message store: %w", err)
	}

	eph, err := ephemeral.NewRedisStore(ctx, cfg.Ephemeral.Addr, cfg.Ephemeral.Password, cfg.Ephemeral.DB)
	if err != nil {
		users.Close()
		msgs.Close(ctx)
		return nil, fmt.Errorf("opening ephemeral store: %w", err)
	}

	return newServer(cfg, users, msgs, eph, logger)
}

// newServer wires the services over already-open stores. Tests inject the
// in-memory implementations here.
func newServer(cfg *config.Config, users store.Store, msgs msgstore.Store, eph ephemeral.Store, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:      []byte(cfg.Token.Secret),
		TTL:         cfg.Token.TTL,
		Issuer:      cfg.Token.Issuer,
		Audience:    cfg.Token.Audience,
		AllowLegacy: cfg.Token.AllowLegacy,
	}, eph, logger)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	mailer := mail.New(mail.Config{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	}, logger)

	authSvc := auth.NewService(users, eph, tokens, mailer, auth.ResetConfig{
		TokenTTL:   cfg.Reset.TokenTTL,
		RateWindow: cfg.Reset.RateWindow,
		RateLimit:  cfg.Reset.RateLimit,
	}, logger)

	convSvc := conversation.New(users, msgs, logger)
	receiptSvc := receipts.New(msgs, convSvc, logger)
	searchSvc := search.New(msgs, convSvc, logger)

	manager := realtime.NewConnectionManager(eph, cfg.Instance.ID, logger)
	hub := realtime.NewHub(manager, convSvc, nil, receiptSvc,
		cfg.Realtime.IdleTimeout, cfg.Realtime.SendBuffer, logger)
	pipe := pipeline.New(cfg.Pipeline.QueueCapacity, msgs, convSvc, hub, logger)
	hub.SetSubmitter(pipe)

	s := &Server{
		cfg:        cfg,
		logger:     logger.With("component", "server"),
		users:      users,
		msgs:       msgs,
		eph:        eph,
		tokens:     tokens,
		auth:       authSvc,
		conv:       convSvc,
		receipts:   receiptSvc,
		search:     searchSvc,
		pipe:       pipe,
		manager:    manager,
		hub:        hub,
		realtime:   realtime.NewHandler(hub, tokens, users, logger),
		reconciler: cleanup.New(users, msgs, cfg.Cleanup.RetentionDays, logger),
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// routes builds the full handler chain: public auth endpoints, the realtime
// handshake, operational endpoints, and the token-protected API.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Operational endpoints, no auth
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Public auth surface
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", s.handleResetPassword)

	// Realtime handshake authenticates its own token
	mux.Handle("GET /ws", s.realtime)

	// Everything below requires a valid bearer token
	authed := auth.HTTPAuthMiddleware(s.tokens, s.users)
	protect := func(h http.HandlerFunc) http.Handler { return authed(h) }

	mux.Handle("POST /auth/logout", protect(s.handleLogout))
	mux.Handle("GET /auth/me", protect(s.handleMe))
	mux.Handle("POST /auth/change-password", protect(s.handleChangePassword))

	mux.Handle("GET /conversations", protect(s.handleListConversations))
	mux.Handle("POST /conversations/direct/{otherUserId}", protect(s.handleCreateDirect))
	mux.Handle("POST /conversations/group", protect(s.handleCreateGroup))
	mux.Handle("GET /conversations/{id}", protect(s.handleGetConversation))
	mux.Handle("PATCH /conversations/{id}", protect(s.handleUpdateConversation))
	mux.Handle("DELETE /conversations/{id}", protect(s.handleDeleteConversation))

	mux.Handle("GET /conversations/{id}/messages", protect(s.handleHistory))
	mux.Handle("POST /conversations/{id}/messages", protect(s.handleSendMessage))
	mux.Handle("GET /conversations/{id}/search", protect(s.handleSearch))
	mux.Handle("POST /conversations/{id}/read", protect(s.handleMarkConversationRead))
	mux.Handle("POST /conversations/{id}/participants", protect(s.handleAddParticipant))
	mux.Handle("DELETE /conversations/{id}/participants/{userId}", protect(s.handleRemoveParticipant))

	mux.Handle("GET /messages/{id}/context", protect(s.handleMessageContext))
	mux.Handle("POST /messages/{id}/receipts", protect(s.handleMessageReceipt))

	mux.Handle("GET /users/{id}", protect(s.handleGetUser))
	mux.Handle("PATCH /users/me", protect(s.handleUpdateProfile))

	return s.corsMiddleware(mux)
}

// corsMiddleware applies the configured allowed origins. An empty list
// disables CORS headers entirely.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origins := s.cfg.Server.CORSOrigins
	if len(origins) == 0 {
		return next
	}

	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (wildcard || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run starts the pipeline worker, the cleanup scheduler, and the HTTP
// listener, then blocks until the context is cancelled or a server error
// occurs. Shutdown is always attempted before returning.
func (s *Server) Run(ctx context.Context) error {
	s.pipe.Start()
	go s.reconciler.Schedule(ctx, s.cfg.Cleanup.Interval)

	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Addr(), err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String(), "instance_id", s.cfg.Instance.ID)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.shutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// shutdown runs the ordered sequence: stop accepting requests, drain the
// pipeline, close live connections, release the stores.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), s.cfg.Pipeline.DrainTimeout)
	if err := s.pipe.Drain(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("pipeline drain: %w", err))
	}
	drainCancel()

	s.hub.CloseAll()

	if err := s.msgs.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("message store close: %w", err))
	}
	if err := s.eph.Close(); err != nil {
		errs = append(errs, fmt.Errorf("ephemeral store close: %w", err))
	}
	if err := s.users.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReadyz pings all three stores; any failure reports 503.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]error{
		"store":         s.users.Ping(ctx),
		"message_store": s.msgs.Ping(ctx),
		"ephemeral":     s.eph.Ping(ctx),
	}
	status := http.StatusOK
	body := make(map[string]string, len(checks))
	for name, err := range checks {
		if err != nil {
			status = http.StatusServiceUnavailable
			body[name] = err.Error()
			continue
		}
		body[name] = "ok"
	}
	writeJSON(w, status, body)
}
