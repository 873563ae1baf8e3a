package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/iepscribe/internal/catalog"
	"github.com/MikeSquared-Agency/iepscribe/internal/iep"
	"github.com/MikeSquared-Agency/iepscribe/internal/metrics"
	"github.com/MikeSquared-Agency/iepscribe/internal/pipeline"
	"github.com/MikeSquared-Agency/iepscribe/internal/progress"
	"github.com/MikeSquared-Agency/iepscribe/internal/weekly"
)

const maxBodyBytes = 1 << 20

type Analyzer interface {
	ExtractAndResolve(ctx context.Context, transcript string, teacherID uuid.UUID) ([]pipeline.SuggestedSession, error)
	InferProgress(ctx context.Context, transcript, memo string, student catalog.Student, objective catalog.Objective) progress.ObjectiveProgress
}

type Catalog interface {
	Student(ctx context.Context, teacherID, studentID uuid.UUID) (catalog.Student, error)
	Objectives(ctx context.Context, teacherID, studentID uuid.UUID) ([]catalog.Objective, error)
}

type NarrativeSummarizer interface {
	Summarize(ctx context.Context, teacherID, studentID uuid.UUID) string
}

type WeeklySummarizer interface {
	Summarize(ctx context.Context, teacherID uuid.UUID, p weekly.Period) (*weekly.Report, error)
}

type IEPParser interface {
	Parse(ctx context.Context, text string) (*iep.IEP, error)
}

type Publisher interface {
	Publish(subject string, data any) error
}

// Deps are the collaborators behind the routes. Publisher and Metrics may be
// nil.
type Deps struct {
	Analyzer  Analyzer
	Catalog   Catalog
	Narrative NarrativeSummarizer
	Weekly    WeeklySummarizer
	IEP       IEPParser
	Publisher Publisher
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

type Server struct {
	router *chi.Mux
	port   int
	http   *http.Server
	Deps
}

func NewServer(port int, apiToken string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		Deps:   deps,
	}

	router.Get("/health", s.health)
	router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Use(TeacherMiddleware)
		r.Post("/transcripts/analyze", s.analyzeTranscript)
		r.Post("/progress/infer", s.inferProgress)
		r.Post("/students/{studentID}/summary", s.summarizeStudent)
		r.Get("/weekly-summary", s.weeklySummary)
		r.Post("/iep/parse", s.parseIEP)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Logger.Info("API server starting", "addr", addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) publish(subject string, data any) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(subject, data); err != nil {
		s.Logger.Warn("failed to publish event", "subject", subject, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
