package processor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/iepscribe/internal/hermes"
	"github.com/MikeSquared-Agency/iepscribe/internal/narrative"
	"github.com/MikeSquared-Agency/iepscribe/internal/pipeline"
)

type published struct {
	subject string
	data    any
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{subject, data})
	return f.err
}

type fakeSummarizer struct {
	summary string
	calls   []uuid.UUID
}

func (f *fakeSummarizer) Summarize(_ context.Context, _, studentID uuid.UUID) string {
	f.calls = append(f.calls, studentID)
	return f.summary
}

type fakeAnalyzer struct {
	sessions []pipeline.SuggestedSession
	err      error
}

func (f *fakeAnalyzer) ExtractAndResolve(context.Context, string, uuid.UUID) ([]pipeline.SuggestedSession, error) {
	return f.sessions, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mutation(t *testing.T, ev hermes.SessionMutated) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestHandleSessionMutated_PublishesSummary(t *testing.T) {
	sum := &fakeSummarizer{summary: "The student is progressing."}
	pub := &fakePublisher{}
	p := New(sum, nil, pub, discardLogger())

	teacher, student := uuid.New(), uuid.New()
	p.HandleSessionMutated(hermes.SubjectSessionMutated, mutation(t, hermes.SessionMutated{
		TeacherID: teacher.String(),
		StudentID: student.String(),
		SessionID: uuid.NewString(),
		Action:    hermes.ActionCreated,
	}))

	if len(sum.calls) != 1 || sum.calls[0] != student {
		t.Fatalf("expected one summarize call for %s, got %v", student, sum.calls)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.msgs))
	}
	if pub.msgs[0].subject != hermes.SubjectSummaryUpdated {
		t.Errorf("expected subject %s, got %s", hermes.SubjectSummaryUpdated, pub.msgs[0].subject)
	}
	got := pub.msgs[0].data.(hermes.SummaryUpdated)
	if got.Summary != "The student is progressing." || got.Fallback {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.TeacherID != teacher.String() {
		t.Errorf("expected teacher %s, got %s", teacher, got.TeacherID)
	}
}

func TestHandleSessionMutated_FlagsFallback(t *testing.T) {
	pub := &fakePublisher{}
	p := New(&fakeSummarizer{summary: narrative.FallbackSummary}, nil, pub, discardLogger())

	p.HandleSessionMutated(hermes.SubjectSessionMutated, mutation(t, hermes.SessionMutated{
		TeacherID: uuid.NewString(),
		StudentID: uuid.NewString(),
		Action:    hermes.ActionDeleted,
	}))

	if len(pub.msgs) != 1 || !pub.msgs[0].data.(hermes.SummaryUpdated).Fallback {
		t.Fatalf("expected fallback flag, got %+v", pub.msgs)
	}
}

func TestHandleSessionMutated_IgnoresMalformed(t *testing.T) {
	sum := &fakeSummarizer{summary: "x"}
	pub := &fakePublisher{}
	p := New(sum, nil, pub, discardLogger())

	p.HandleSessionMutated(hermes.SubjectSessionMutated, []byte("not json"))
	p.HandleSessionMutated(hermes.SubjectSessionMutated, mutation(t, hermes.SessionMutated{
		TeacherID: "nope", StudentID: uuid.NewString(), Action: hermes.ActionCreated,
	}))
	p.HandleSessionMutated(hermes.SubjectSessionMutated, mutation(t, hermes.SessionMutated{
		TeacherID: uuid.NewString(), StudentID: uuid.NewString(), Action: "archived",
	}))

	if len(sum.calls) != 0 || len(pub.msgs) != 0 {
		t.Errorf("expected malformed events to be dropped, got %d calls and %d messages", len(sum.calls), len(pub.msgs))
	}
}

func TestHandleSessionMutated_PublishErrorIsLogged(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats down")}
	p := New(&fakeSummarizer{summary: "x"}, nil, pub, discardLogger())

	p.HandleSessionMutated(hermes.SubjectSessionMutated, mutation(t, hermes.SessionMutated{
		TeacherID: uuid.NewString(), StudentID: uuid.NewString(), Action: hermes.ActionUpdated,
	}))
	if len(pub.msgs) != 1 {
		t.Errorf("expected one publish attempt, got %d", len(pub.msgs))
	}
}

func TestHandleTranscriptSubmitted(t *testing.T) {
	sessions := []pipeline.SuggestedSession{{RawInput: "John read.", Memo: "Read a page."}}
	pub := &fakePublisher{}
	p := New(nil, &fakeAnalyzer{sessions: sessions}, pub, discardLogger())

	data, _ := json.Marshal(hermes.TranscriptSubmitted{RequestID: "req-1", TeacherID: uuid.NewString(), Transcript: "John read."})
	p.HandleTranscriptSubmitted(hermes.SubjectTranscriptSubmitted, data)

	if len(pub.msgs) != 1 || pub.msgs[0].subject != hermes.SubjectTranscriptAnalyzed {
		t.Fatalf("expected analyzed event, got %+v", pub.msgs)
	}
	got := pub.msgs[0].data.(hermes.TranscriptAnalyzed)
	if got.RequestID != "req-1" || got.Result != pipeline.ResultOK || got.Count != 1 || got.Error != "" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestHandleTranscriptSubmitted_ReportsFailure(t *testing.T) {
	pub := &fakePublisher{}
	p := New(nil, &fakeAnalyzer{err: pipeline.ErrNoSessions}, pub, discardLogger())

	data, _ := json.Marshal(hermes.TranscriptSubmitted{RequestID: "req-2", TeacherID: uuid.NewString(), Transcript: "The weather was nice today."})
	p.HandleTranscriptSubmitted(hermes.SubjectTranscriptSubmitted, data)

	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.msgs))
	}
	got := pub.msgs[0].data.(hermes.TranscriptAnalyzed)
	if got.Result != pipeline.ResultNoSessions || got.Error == "" || got.Sessions != nil {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestHandleTranscriptSubmitted_DropsInvalid(t *testing.T) {
	pub := &fakePublisher{}
	p := New(nil, &fakeAnalyzer{}, pub, discardLogger())

	bad, _ := json.Marshal(hermes.TranscriptSubmitted{TeacherID: "x", Transcript: "John read."})
	blank, _ := json.Marshal(hermes.TranscriptSubmitted{TeacherID: uuid.NewString(), Transcript: "  "})
	p.HandleTranscriptSubmitted(hermes.SubjectTranscriptSubmitted, bad)
	p.HandleTranscriptSubmitted(hermes.SubjectTranscriptSubmitted, blank)
	p.HandleTranscriptSubmitted(hermes.SubjectTranscriptSubmitted, []byte("{"))

	if len(pub.msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(pub.msgs))
	}
}
