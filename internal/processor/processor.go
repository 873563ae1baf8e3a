package processor

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/iepscribe/internal/hermes"
	"github.com/MikeSquared-Agency/iepscribe/internal/narrative"
	"github.com/MikeSquared-Agency/iepscribe/internal/pipeline"
)

const (
	summaryTimeout  = 2 * time.Minute
	analysisTimeout = 5 * time.Minute
)

type Publisher interface {
	Publish(subject string, data any) error
}

type Summarizer interface {
	Summarize(ctx context.Context, teacherID, studentID uuid.UUID) string
}

type Analyzer interface {
	ExtractAndResolve(ctx context.Context, transcript string, teacherID uuid.UUID) ([]pipeline.SuggestedSession, error)
}

// Processor handles bus events: it regenerates student summaries after
// session mutations and analyses transcripts submitted over the bus.
type Processor struct {
	summarizer Summarizer
	analyzer   Analyzer
	publisher  Publisher
	logger     *slog.Logger
}

func New(sum Summarizer, an Analyzer, pub Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		summarizer: sum,
		analyzer:   an,
		publisher:  pub,
		logger:     logger,
	}
}

// HandleSessionMutated is the NATS handler for iep.session.mutated. A
// session mutation never fails because of summarization; malformed events
// are logged and dropped.
func (p *Processor) HandleSessionMutated(subject string, data []byte) {
	var evt hermes.SessionMutated
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse session mutation event", "subject", subject, "error", err)
		return
	}

	teacherID, studentID, err := evt.IDs()
	if err != nil {
		p.logger.Error("invalid session mutation event", "session_id", evt.SessionID, "error", err)
		return
	}

	p.logger.Info("regenerating student summary",
		"teacher_id", teacherID,
		"student_id", studentID,
		"session_id", evt.SessionID,
		"action", evt.Action,
	)

	ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
	defer cancel()

	summary := p.summarizer.Summarize(ctx, teacherID, studentID)

	p.publish(hermes.SubjectSummaryUpdated, hermes.SummaryUpdated{
		TeacherID: teacherID.String(),
		StudentID: studentID.String(),
		Summary:   summary,
		Fallback:  summary == narrative.FallbackSummary,
	})
}

// HandleTranscriptSubmitted is the NATS handler for iep.transcript.submitted.
// The outcome, including failures, is published on iep.transcript.analyzed.
func (p *Processor) HandleTranscriptSubmitted(subject string, data []byte) {
	var evt hermes.TranscriptSubmitted
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse transcript submission", "subject", subject, "error", err)
		return
	}

	teacherID, err := uuid.Parse(evt.TeacherID)
	if err != nil {
		p.logger.Error("invalid teacher id", "teacher_id", evt.TeacherID, "request_id", evt.RequestID, "error", err)
		return
	}
	if strings.TrimSpace(evt.Transcript) == "" {
		p.logger.Warn("empty transcript submitted", "request_id", evt.RequestID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	sessions, err := p.analyzer.ExtractAndResolve(ctx, evt.Transcript, teacherID)
	out := hermes.TranscriptAnalyzed{
		RequestID: evt.RequestID,
		TeacherID: teacherID.String(),
		Result:    pipeline.Result(err),
		Count:     len(sessions),
	}
	if err != nil {
		p.logger.Error("transcript analysis failed", "request_id", evt.RequestID, "error", err)
		out.Error = err.Error()
	} else {
		out.Sessions = sessions
	}
	p.publish(hermes.SubjectTranscriptAnalyzed, out)
}

func (p *Processor) publish(subject string, data any) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish event", "subject", subject, "error", err)
	}
}
