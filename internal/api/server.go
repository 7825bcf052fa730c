// Package api provides the read-only HTTP surface for downstream
// tooling that queries the profile store and batch status (spec §1
// Purpose, §4.I).
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/edgarprofiles/engine/internal/batch"
	"github.com/edgarprofiles/engine/internal/config"
	"github.com/edgarprofiles/engine/pkg/profile"
)

// ProfileReader is the subset of internal/store.Store the API reads
// profiles through.
type ProfileReader interface {
	GetProfile(cik string) (profile.Document, bool, error)
	ListProfilesByQuality(maxGradeRank int, gradeRank func(grade string) int) ([]profile.Document, error)
	GetEdge(key string) (profile.RelationshipEdge, bool, error)
}

// FailureReader is the subset of internal/store.Store the API reads
// failure records through.
type FailureReader interface {
	GetFailure(ticker string) (profile.FailureRecord, bool, error)
	ListFailures() ([]profile.FailureRecord, error)
}

// CIKResolver turns a ticker into a CIK for the /profiles/{ticker}
// route, which accepts either form.
type CIKResolver interface {
	ResolveCIK(ctx context.Context, ticker string) (string, error)
}

// Server is the profile engine's HTTP API server.
type Server struct {
	router   chi.Router
	cfg      *config.APIConfig
	profiles ProfileReader
	failures FailureReader
	resolver CIKResolver
	batch    *batch.Controller
}

// NewServer builds a configured API server with all routes and
// middleware wired in (spec §4.I consumers "query the profile store
// and batch status over HTTP").
func NewServer(cfg *config.APIConfig, profiles ProfileReader, failures FailureReader, resolver CIKResolver, ctrl *batch.Controller) *Server {
	s := &Server{
		cfg:      cfg,
		profiles: profiles,
		failures: failures,
		resolver: resolver,
		batch:    ctrl,
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router { return s.router }

// ListenAndServe starts the HTTP server and blocks until an interrupt
// signal triggers a graceful shutdown.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-done:
	}

	log.Println("api: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.CORSOrigins) > 0 {
		origins = s.cfg.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/profiles/{ticker}", s.handleGetProfile)
		r.Get("/profiles", s.handleListProblematic)
		r.Get("/edges/{key}", s.handleGetEdge)
		r.Get("/failures/{ticker}", s.handleGetFailure)
		r.Get("/failures", s.handleListFailures)

		r.Route("/batch", func(r chi.Router) {
			r.Get("/status", s.handleBatchStatus)
			r.Post("/tickers/{ticker}", s.handleBatchAddTicker)
			r.Post("/pause", s.handleBatchPause)
			r.Post("/resume", s.handleBatchResume)
			r.Post("/cancel", s.handleBatchCancel)
			r.Post("/retry-failed", s.handleBatchRetryFailed)
			r.Post("/retry-problematic", s.handleBatchRetryProblematic)
		})
	})

	return r
}
