// Package server provides the HTTP API for asking questions about a document.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"document-agent/internal/config"
	"document-agent/internal/rag"
)

// ProcessorFactory builds an empty processor ready to ingest a document.
type ProcessorFactory func(ctx context.Context) (*rag.DocumentProcessor, error)

// Server is the HTTP server for the document API. Uploads build a fresh
// processor and swap it in whole, so a request in flight keeps answering
// from the processor it started with.
type Server struct {
	config       *config.ServerConfig
	newProcessor ProcessorFactory
	server       *http.Server

	mu        sync.RWMutex
	processor *rag.DocumentProcessor
	source    string
}

// NewServer creates a server. It starts with no document loaded.
func NewServer(cfg *config.ServerConfig, factory ProcessorFactory) *Server {
	return &Server{config: cfg, newProcessor: factory}
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors)

	r.Get("/status", s.handleStatus)
	r.Post("/ask", s.handleAsk)
	r.Post("/upload", s.handleUpload)

	if s.config.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("Starting server")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and releases the current processor.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.mu.Lock()
	p := s.processor
	s.processor = nil
	s.mu.Unlock()
	if p != nil {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Current returns the processor serving requests and the name of its
// document. The processor is nil until a document has been loaded.
func (s *Server) Current() (*rag.DocumentProcessor, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processor, s.source
}

// Load ingests the document at path into a fresh processor and makes it
// current. name is what /status reports as the source. On failure the
// current processor is kept.
func (s *Server) Load(ctx context.Context, path, name string) (int, error) {
	p, err := s.newProcessor(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create processor: %w", err)
	}
	n, err := p.Ingest(ctx, path)
	if err != nil {
		if cerr := p.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close processor")
		}
		return 0, err
	}

	s.mu.Lock()
	old := s.processor
	s.processor = p
	s.source = name
	s.mu.Unlock()

	if old != nil {
		go func() {
			if err := old.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close previous processor")
			}
		}()
	}
	log.Info().Str("source", name).Int("chunks", n).Msg("Document ready")
	return n, nil
}
