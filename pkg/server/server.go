// Package server exposes the chat over a JSON REST API and a WebSocket feed.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/nstogner/scholarmate/pkg/controller"
	"github.com/nstogner/scholarmate/pkg/model"
)

// Server serves the chat API.
type Server struct {
	controller *controller.Controller
	provider   model.Provider

	mu     sync.Mutex
	srv    *http.Server
	closed bool
}

// New creates a new Server.
func New(controller *controller.Controller, provider model.Provider) *Server {
	return &Server{
		controller: controller,
		provider:   provider,
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Transcript
	mux.HandleFunc("GET /api/messages", s.handleListMessages)

	// Exchanges
	mux.HandleFunc("POST /api/chat/messages", s.handleSendMessage)
	mux.HandleFunc("POST /api/chat/reset", s.handleReset)

	// Prompts and models
	mux.HandleFunc("GET /api/starters", s.handleStarters)
	mux.HandleFunc("GET /api/models", s.handleListModels)

	// WebSocket
	mux.HandleFunc("GET /api/chat", s.handleChatWebSocket)

	return s.corsMiddleware(mux)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	srv := s.srv
	s.mu.Unlock()

	slog.Info("Starting web server", "addr", addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully stops the server. A later Start returns
// http.ErrServerClosed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	slog.Error("API Error", "status", status, "error", err)
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}
