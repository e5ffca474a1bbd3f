package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/DualCap/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
	metrics  http.Handler
}

// NewServer creates a server configured for the given address and dependencies.
// metrics may be nil, in which case /metrics is not registered.
func NewServer(addr string, broadcaster *StatusBroadcaster, deps Deps, metrics http.Handler) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: sub static fs: %w", err)
	}

	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, deps, subFS),
		metrics:  metrics,
	}, nil
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	h := s.handlers

	mux.HandleFunc("GET /session", h.HandleSession)
	mux.HandleFunc("POST /authorize", h.HandleAuthorize)
	mux.HandleFunc("POST /capture", h.HandleCapture)
	mux.HandleFunc("POST /flash", h.HandleFlash)
	mux.HandleFunc("POST /discard", h.HandleDiscard)
	mux.HandleFunc("POST /submit", h.HandleSubmit)
	mux.HandleFunc("GET /photos/{facing}", h.HandlePhoto)
	mux.HandleFunc("GET /feed", h.HandleFeed)
	mux.HandleFunc("GET /feed/{id}", h.HandleMoment)
	mux.HandleFunc("GET /feed/{id}/{image}", h.HandleMomentImage)
	mux.HandleFunc("GET /config", h.HandleConfig)
	mux.HandleFunc("GET /status/stream", h.HandleStatusStream)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	mux.HandleFunc("GET /{$}", h.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
