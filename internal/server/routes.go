package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Strangers/internal/config"
	"github.com/BioHazard786/Strangers/internal/signaling"
	"github.com/BioHazard786/Strangers/internal/stats"
)

const (
	rootText   = "Strangers backend server running!"
	healthText = "Strangers server is healthy."

	shutdownTimeout = 10 * time.Second
)

// Server is the HTTP surface of the matchmaking service.
type Server struct {
	cfg      *config.Server
	hub      *signaling.Hub
	stats    *stats.Collector
	logger   *slog.Logger
	upgrader websocket.Upgrader
	origins  map[string]bool
}

// New creates a Server. The hub must be running for websocket clients to be
// served.
func New(cfg *config.Server, hub *signaling.Hub, collector *stats.Collector, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		stats:   collector,
		logger:  logger,
		origins: make(map[string]bool),
	}
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			s.origins[strings.TrimSuffix(o, "/")] = true
		}
	}

	// Configure the websocket upgrader
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 4 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed handler with the CORS policy applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /ws", s.handleWS)
	return s.cors(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeText(w, rootText)
}

// Health Check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, healthText)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats.Collect()); err != nil {
		s.logger.Warn("write stats", "error", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	// The upgrader writes its own error response
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.hub.Attach(conn)
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// cors applies the allowed-origins policy to plain HTTP routes and answers
// preflight requests.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			if s.cfg.AllowsAnyOrigin() {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.originAllowed(origin) {
		return true
	}
	s.logger.Warn("websocket origin rejected", "origin", origin)
	return false
}

func (s *Server) originAllowed(origin string) bool {
	if s.cfg.AllowsAnyOrigin() {
		return true
	}
	if s.origins[strings.TrimSuffix(origin, "/")] {
		return true
	}
	// Allow entries given as a bare host, e.g. "strangers.example".
	if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
		return s.origins[parsed.Host]
	}
	return false
}
