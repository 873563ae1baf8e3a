// Package pipeline turns a transcript into suggested sessions: extraction,
// then per-event resolution and progress inference, fanned out concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/iepscribe/internal/catalog"
	"github.com/MikeSquared-Agency/iepscribe/internal/extractor"
	"github.com/MikeSquared-Agency/iepscribe/internal/metrics"
	"github.com/MikeSquared-Agency/iepscribe/internal/progress"
	"github.com/MikeSquared-Agency/iepscribe/internal/resolver"
)

const DefaultConcurrency = 4

var (
	// ErrEmptyCatalog is resolver.ErrEmptyCatalog, re-exported for callers
	// that only import the pipeline.
	ErrEmptyCatalog = resolver.ErrEmptyCatalog

	// ErrNoSessions means the transcript held nothing session-worthy.
	ErrNoSessions = errors.New("no valid session data found in transcript")

	// ErrAnalysisFailed wraps extraction and resolution failures.
	ErrAnalysisFailed = errors.New("transcript analysis failed")
)

// Analysis outcomes, as reported in metrics and events.
const (
	ResultOK         = "ok"
	ResultNoSessions = "no_sessions"
	ResultNoStudents = "no_students"
	ResultFailed     = "failed"
)

// Result classifies an ExtractAndResolve error.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrNoSessions):
		return ResultNoSessions
	case errors.Is(err, ErrEmptyCatalog):
		return ResultNoStudents
	default:
		return ResultFailed
	}
}

// SuggestedSession is one extracted event with its ranked matches and
// inferred progress, awaiting human confirmation.
type SuggestedSession struct {
	RawInput          string                     `json:"raw_input"`
	Memo              string                     `json:"memo"`
	ObjectiveProgress progress.ObjectiveProgress `json:"objective_progress"`
	Matches           []resolver.StudentMatch    `json:"matches"`
}

type Extractor interface {
	Extract(ctx context.Context, transcript string, knownStudents []string) (*extractor.Result, error)
}

type Resolver interface {
	Resolve(ctx context.Context, teacherID uuid.UUID, ev extractor.ParsedSessionEvent, students []catalog.Student) ([]resolver.StudentMatch, error)
}

type Inferencer interface {
	Infer(ctx context.Context, req progress.Request) progress.ObjectiveProgress
}

type Service struct {
	catalog    catalog.Provider
	extractor  Extractor
	resolver   Resolver
	inferencer Inferencer
	logger     *slog.Logger
	metrics    *metrics.Recorder

	// Concurrency bounds how many events are resolved at once.
	Concurrency int
}

func New(p catalog.Provider, ext Extractor, res Resolver, inf Inferencer, logger *slog.Logger, m *metrics.Recorder) *Service {
	return &Service{
		catalog:     p,
		extractor:   ext,
		resolver:    res,
		inferencer:  inf,
		logger:      logger,
		metrics:     m,
		Concurrency: DefaultConcurrency,
	}
}

// ExtractAndResolve analyses a transcript for one teacher. Sessions come back
// in extraction order. It fails with ErrEmptyCatalog when the teacher has no
// students, ErrNoSessions when nothing valid was extracted, and an
// ErrAnalysisFailed-wrapped cause otherwise.
func (s *Service) ExtractAndResolve(ctx context.Context, transcript string, teacherID uuid.UUID) ([]SuggestedSession, error) {
	log := s.logger.With("teacher_id", teacherID)

	roster, err := s.catalog.Students(ctx, teacherID)
	if err != nil {
		s.metrics.Analysis(ResultFailed, 0)
		return nil, fmt.Errorf("%w: fetch students: %w", ErrAnalysisFailed, err)
	}
	if len(roster) == 0 {
		s.metrics.Analysis(ResultNoStudents, 0)
		return nil, ErrEmptyCatalog
	}
	students := make([]catalog.Student, len(roster))
	for i, st := range roster {
		students[i] = st.Normalize()
	}

	extracted, err := s.extractor.Extract(ctx, transcript, catalog.Names(students))
	if err != nil {
		s.metrics.Analysis(ResultFailed, 0)
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	if len(extracted.Events) == 0 {
		log.Info("no session events in transcript", "dropped", len(extracted.Dropped))
		s.metrics.Analysis(ResultNoSessions, 0)
		return nil, ErrNoSessions
	}

	sessions := make([]SuggestedSession, len(extracted.Events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, ev := range extracted.Events {
		g.Go(func() error {
			sess, err := s.assemble(gctx, transcript, teacherID, ev, students)
			if err != nil {
				return fmt.Errorf("event %d (%s): %w", i, ev.StudentName, err)
			}
			sessions[i] = sess
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.metrics.Analysis(ResultFailed, 0)
		if errors.Is(err, ErrEmptyCatalog) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	log.Info("transcript analysed",
		"events", len(extracted.Events),
		"dropped", len(extracted.Dropped),
		"sessions", len(sessions),
	)
	s.metrics.Analysis(ResultOK, len(sessions))
	return sessions, nil
}

func (s *Service) assemble(ctx context.Context, transcript string, teacherID uuid.UUID, ev extractor.ParsedSessionEvent, students []catalog.Student) (SuggestedSession, error) {
	matches, err := s.resolver.Resolve(ctx, teacherID, ev, students)
	if err != nil {
		return SuggestedSession{}, err
	}

	p := progress.Fallback
	if student, objective, ok := resolver.Best(matches); ok {
		p = s.InferProgress(ctx, transcript, ev.Memo, student, objective)
	} else {
		s.logger.Info("no objective resolved, skipping inference", "student_query", ev.StudentName)
	}

	return SuggestedSession{
		RawInput:          transcript,
		Memo:              ev.Memo,
		ObjectiveProgress: p,
		Matches:           matches,
	}, nil
}

// InferProgress estimates progress for an explicit student and objective,
// e.g. after a reviewer corrected the suggested match.
func (s *Service) InferProgress(ctx context.Context, transcript, memo string, student catalog.Student, objective catalog.Objective) progress.ObjectiveProgress {
	return s.inferencer.Infer(ctx, progress.Request{
		Transcript: transcript,
		Memo:       memo,
		Student:    student.Normalize(),
		Objective:  objective,
	})
}

func (s *Service) concurrency() int {
	if s.Concurrency < 1 {
		return 1
	}
	return s.Concurrency
}
