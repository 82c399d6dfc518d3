package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tikpoptv/terrahost/internal/blobstore"
	"github.com/tikpoptv/terrahost/internal/config"
	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/extractor"
	"github.com/tikpoptv/terrahost/internal/persistence"
	"github.com/tikpoptv/terrahost/internal/pipeline"
	"github.com/tikpoptv/terrahost/internal/quality"
	"github.com/tikpoptv/terrahost/internal/report"
	"github.com/tikpoptv/terrahost/internal/retrieval"
	"github.com/tikpoptv/terrahost/internal/session"
	"github.com/tikpoptv/terrahost/internal/upload"
)

type Server struct {
	cfg       *config.Config
	db        *database.DB
	hub       *Hub
	processor *pipeline.Processor
	uploader  *upload.Uploader
	auditor   *quality.Auditor
	reportGen *report.Generator
	mux       *http.ServeMux
}

func New(cfg *config.Config, db *database.DB, store blobstore.Store) (*Server, error) {
	hub := NewHub()

	processor, err := NewProcessor(cfg, db, store, hub)
	if err != nil {
		return nil, err
	}

	auditor := quality.NewAuditor(db, nil)
	s := &Server{
		cfg:       cfg,
		db:        db,
		hub:       hub,
		processor: processor,
		uploader:  upload.New(db, store, nil),
		auditor:   auditor,
		reportGen: report.NewGenerator(db, auditor, cfg.Reports.Directory, cfg.Reports.FontPath),
		mux:       http.NewServeMux(),
	}

	s.registerRoutes()
	return s, nil
}

// NewProcessor wires the pipeline stages from the worker, scratch and pool
// settings. Session events go to broadcaster, which may be nil.
func NewProcessor(cfg *config.Config, db *database.DB, store blobstore.Store, broadcaster session.Broadcaster) (*pipeline.Processor, error) {
	invoker := extractor.New(cfg.Worker.Binary, cfg.Worker.Args, extractor.WithTimeout(cfg.Worker.Timeout))
	processor, err := pipeline.New(db,
		session.NewTracker(db, broadcaster, nil),
		retrieval.NewFetcher(store, cfg.Scratch.Directory),
		invoker,
		persistence.New(db, nil),
		pipeline.WithPoolSize(cfg.Worker.PoolSize),
		pipeline.WithQueueSize(cfg.Worker.QueueSize),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}
	return processor, nil
}

// Handler is the mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return recoveryMiddleware(securityHeaders(loggingMiddleware(s.mux)))
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	case err := <-serverErr:
		return err
	}
}

// Close stops accepting pipeline runs once the running ones finish.
func (s *Server) Close() {
	s.processor.Release()
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/healthcheck", s.handleHealthcheck)

	// API
	s.mux.HandleFunc("/api/assets", s.handleAPIAssets)
	s.mux.HandleFunc("/api/assets/", s.handleAPIAsset)
	s.mux.HandleFunc("/api/sessions/", s.handleAPISession)
	s.mux.HandleFunc("/api/reports/", s.handleAPIReport)
	s.mux.HandleFunc("/api/worker/status", s.handleAPIWorkerStatus)

	// WebSocket
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}
