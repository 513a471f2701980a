// ABOUTME: HTTP JSON API over the responder core
// ABOUTME: Routes, optional JWT auth, and graceful shutdown

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/coven-responder/internal/auth"
	"github.com/2389/coven-responder/internal/autoreply"
	"github.com/2389/coven-responder/internal/chatconfig"
	"github.com/2389/coven-responder/internal/store"
)

// Core is the responder surface the API exposes. *responder.Responder implements it.
type Core interface {
	Dispatch(ctx context.Context, chatID, text string, forceFire bool) (autoreply.Outcome, error)
	RegisterRule(ctx context.Context, chatID, name, pattern string, response autoreply.Response) error
	Rules(chatID string) []*autoreply.Rule
	NoteItemPosted(ctx context.Context, chatID, categoryKey string, item store.ItemRecord) (store.ItemRecord, bool, error)
	Echo(ctx context.Context, chatID, categoryKey string, item store.ItemRecord) (store.ItemRecord, bool, error)
	Config(ctx context.Context, chatID string) (chatconfig.Config, error)
	UpdateConfig(ctx context.Context, chatID string, update store.SettingsUpdate) error
}

// Server serves the API.
type Server struct {
	core     Core
	verifier auth.TokenVerifier
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New builds the API. A nil verifier disables authentication.
func New(core Core, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	s := &Server{
		core:     core,
		verifier: verifier,
		logger:   logger.With("component", "api"),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Health endpoint - no auth required
	s.mux.HandleFunc("GET /health", s.handleHealth)

	routes := map[string]http.HandlerFunc{
		"POST /api/chats/{chat}/dispatch": s.handleDispatch,
		"GET /api/chats/{chat}/rules":     s.handleListRules,
		"POST /api/chats/{chat}/rules":    s.handleCreateRule,
		"POST /api/chats/{chat}/items":    s.handleItemPosted,
		"GET /api/chats/{chat}/config":    s.handleGetConfig,
		"PUT /api/chats/{chat}/config":    s.handleUpdateConfig,
	}

	wrap := func(h http.Handler) http.Handler { return h }
	if s.verifier != nil {
		wrap = auth.HTTPAuthMiddleware(s.verifier)
		s.logger.Info("HTTP auth middleware enabled")
	} else {
		s.logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}

	for pattern, h := range routes {
		s.mux.Handle(pattern, wrap(s.requireChatAccess(h)))
	}
}

// Handler returns the API's root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// with a five second grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	// The parent context is already cancelled
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// requireChatAccess rejects callers whose token is scoped to other chats.
func (s *Server) requireChatAccess(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := auth.FromContext(r.Context()); id != nil && !id.CanAccess(r.PathValue("chat")) {
			s.sendJSONError(w, http.StatusForbidden, "token not valid for this chat")
			return
		}
		next(w, r)
	})
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
