// Package server exposes compiled fields over HTTP and WebSocket. Clients
// send one value per request or frame and get back the serialized field or
// a classified error.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/delimcodec/core/layout"
	"github.com/FocuswithJustin/delimcodec/internal/journal"
	"github.com/FocuswithJustin/delimcodec/internal/logging"
)

// Server serves one compiled layout.
type Server struct {
	cfg      Config
	fields   *layout.Fields
	journal  *journal.Journal
	runID    string
	index    atomic.Int64
	upgrader websocket.Upgrader
}

// New creates a server for fields. When j is non-nil every failure is
// recorded in a journal run opened here and closed by Close.
func New(cfg Config, fields *layout.Fields, j *journal.Journal) (*Server, error) {
	cfg = cfg.withDefaults()
	s := &Server{cfg: cfg, fields: fields, journal: j}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r.Header.Get("Origin"), cfg.AllowedOrigins)
		},
	}
	if j != nil {
		run, err := j.StartRun(context.Background(), cfg.LayoutPath, "server")
		if err != nil {
			return nil, err
		}
		s.runID = run.ID
	}
	return s, nil
}

// RunID returns the journal run of this server, or "" without a journal.
func (s *Server) RunID() string { return s.runID }

// Close finishes the journal run.
func (s *Server) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.FinishRun(context.Background(), s.runID, int(s.index.Load()))
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/fields", s.handleFields)
	mux.HandleFunc("/unparse", s.handleUnparse)
	mux.HandleFunc("/ws", s.handleWebSocket)

	var handler http.Handler = securityHeaders(mux)
	handler = corsMiddleware(s.cfg.AllowedOrigins, handler)
	return logging.Middleware(handler)
}

// Start loads the layout, opens the journal if configured and serves until
// the listener fails.
func Start(cfg Config) error {
	cfg = cfg.withDefaults()
	if cfg.LayoutPath == "" {
		return fmt.Errorf("no layout configured")
	}
	specs, err := layout.Load(cfg.LayoutPath)
	if err != nil {
		return fmt.Errorf("load layout: %w", err)
	}
	fields, err := layout.CompileAll(specs, nil)
	if err != nil {
		return fmt.Errorf("compile layout: %w", err)
	}
	digest, err := layout.Digest(specs)
	if err != nil {
		return err
	}

	var j *journal.Journal
	if cfg.JournalPath != "" {
		if j, err = journal.Open(cfg.JournalPath); err != nil {
			return err
		}
		defer j.Close()
	}

	s, err := New(cfg, fields, j)
	if err != nil {
		return err
	}
	defer s.Close()

	logging.ServerStartup("unparse", "http", cfg.Port,
		"websocket_protocol", "ws",
		"layout", cfg.LayoutPath,
		"layout_blake3", digest,
		"fields", len(fields.Names()))
	if len(cfg.AllowedOrigins) == 0 {
		logging.Warn("allowing all origins", "note", "set allowed origins for production")
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	return http.ListenAndServe(addr, s.Handler())
}
