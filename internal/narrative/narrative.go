// Package narrative regenerates a student's short progress summary from
// recent sessions and stores it on the student record.
package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/iepscribe/internal/catalog"
	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
	"github.com/MikeSquared-Agency/iepscribe/internal/metrics"
)

// FallbackSummary is returned whenever a summary cannot be produced. It is
// never persisted.
const FallbackSummary = "Unable to generate summary at this time."

const (
	summaryTemperature = 0.4
	recentSessionLimit = 10
)

// Session is a logged session joined with its objective's labels.
type Session struct {
	CreatedAt   time.Time
	RawInput    string
	Memo        string
	Objective   string
	SubjectArea string
	Goal        string
}

// Store reads the inputs of a summary and writes the result back.
type Store interface {
	Student(ctx context.Context, teacherID, studentID uuid.UUID) (catalog.Student, error)
	RecentSessions(ctx context.Context, teacherID, studentID uuid.UUID, limit int) ([]Session, error)
	Objectives(ctx context.Context, teacherID, studentID uuid.UUID) ([]catalog.Objective, error)
	UpdateSummary(ctx context.Context, teacherID, studentID uuid.UUID, summary string) error
}

type Summarizer struct {
	store   Store
	llm     llm.Gateway
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func New(store Store, gw llm.Gateway, logger *slog.Logger, m *metrics.Recorder) *Summarizer {
	return &Summarizer{store: store, llm: gw, logger: logger, metrics: m}
}

// Summarize writes and stores a fresh summary for the student. Any failure
// yields FallbackSummary; errors are logged, never returned. Concurrent calls
// for the same student are last-write-wins.
func (s *Summarizer) Summarize(ctx context.Context, teacherID, studentID uuid.UUID) string {
	log := s.logger.With("teacher_id", teacherID, "student_id", studentID)

	summary, err := s.generate(ctx, teacherID, studentID)
	if err != nil {
		log.Error("student summary generation failed", "error", err)
		s.metrics.NarrativeFallback()
		return FallbackSummary
	}

	if err := s.store.UpdateSummary(ctx, teacherID, studentID, summary); err != nil {
		log.Error("failed to store student summary", "error", err)
	} else {
		log.Info("student summary updated", "words", len(strings.Fields(summary)))
	}
	return summary
}

func (s *Summarizer) generate(ctx context.Context, teacherID, studentID uuid.UUID) (string, error) {
	student, err := s.store.Student(ctx, teacherID, studentID)
	if err != nil {
		return "", fmt.Errorf("fetch student: %w", err)
	}
	sessions, err := s.store.RecentSessions(ctx, teacherID, studentID, recentSessionLimit)
	if err != nil {
		return "", fmt.Errorf("fetch sessions: %w", err)
	}
	objectives, err := s.store.Objectives(ctx, teacherID, studentID)
	if err != nil {
		return "", fmt.Errorf("fetch objectives: %w", err)
	}

	prompt, err := buildPrompt(student.Normalize(), sessions, objectives)
	if err != nil {
		return "", err
	}

	raw, err := s.llm.Complete(ctx, systemPrompt, prompt, summaryTemperature)
	if err != nil {
		return "", fmt.Errorf("llm summary: %w", err)
	}
	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", errors.New("empty summary")
	}
	return summary, nil
}

type promptSession struct {
	Date        string `json:"date"`
	Objective   string `json:"objective"`
	SubjectArea string `json:"subject_area"`
	Goal        string `json:"goal"`
	Memo        string `json:"memo"`
}

type promptObjective struct {
	Description string `json:"description"`
	SubjectArea string `json:"subject_area"`
	Goal        string `json:"goal"`
}

func buildPrompt(student catalog.Student, sessions []Session, objectives []catalog.Objective) (string, error) {
	ps := make([]promptSession, len(sessions))
	for i, sess := range sessions {
		memo := strings.TrimSpace(sess.Memo)
		if memo == "" {
			memo = sess.RawInput
		}
		ps[i] = promptSession{
			Date:        sess.CreatedAt.UTC().Format(time.RFC3339),
			Objective:   catalog.OrUnknown(sess.Objective),
			SubjectArea: catalog.OrUnknown(sess.SubjectArea),
			Goal:        catalog.OrUnknown(sess.Goal),
			Memo:        memo,
		}
	}

	po := make([]promptObjective, len(objectives))
	for i, o := range objectives {
		po[i] = promptObjective{
			Description: o.Description,
			SubjectArea: catalog.OrUnknown(o.SubjectArea),
			Goal:        catalog.OrUnknown(o.Goal),
		}
	}

	objJSON, err := json.MarshalIndent(po, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode objectives: %w", err)
	}
	sessJSON, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode sessions: %w", err)
	}

	return fmt.Sprintf(summaryUserPrompt,
		student.GradeLevel,
		student.DisabilityType,
		student.NarrativeSummary,
		objJSON,
		sessJSON,
	), nil
}
