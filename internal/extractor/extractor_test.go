package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/iepscribe/internal/anthropic"
	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// cannedGateway answers every prompt with the same text and remembers the last prompt.
type cannedGateway struct {
	reply      string
	err        error
	lastPrompt string
	lastTemp   float64
}

func (g *cannedGateway) Complete(_ context.Context, _, user string, temperature float64) (string, error) {
	g.lastPrompt = user
	g.lastTemp = temperature
	return g.reply, g.err
}

func anthropicServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
			"stop_reason": "end_turn",
		})
	}))
}

func TestExtract_Success(t *testing.T) {
	events := []ParsedSessionEvent{
		{
			StudentName:          "John",
			ObjectiveDescription: "John is working on his math assessment.",
			Memo:                 "John got 15 out of 20 right on his math test.",
		},
	}
	respJSON, _ := json.Marshal(events)

	server := anthropicServer(t, string(respJSON))
	defer server.Close()

	gw := anthropic.NewClient("test-key", "test-model")
	gw.SetTestTransport(server.URL)

	ext := New(gw, discardLogger(), nil)

	result, err := ext.Extract(context.Background(), "John got 15 out of 20 right on his math test.", []string{"John"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(result.Events))
	}
	if result.Events[0].StudentName != "John" {
		t.Errorf("expected student John, got %q", result.Events[0].StudentName)
	}
	if len(result.Dropped) != 0 {
		t.Errorf("expected no drops, got %+v", result.Dropped)
	}
}

func TestExtract_CodeFencedResponse(t *testing.T) {
	gw := &cannedGateway{reply: "```json\n[{\"student_name\":\"Bobby\",\"objective_description\":\"Bobby is reading sight words.\",\"memo\":\"Bobby read 8 of 10 sight words.\"}]\n```"}
	ext := New(gw, discardLogger(), nil)

	result, err := ext.Extract(context.Background(), "Bobby read 8 of 10 sight words.", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 1 || result.Events[0].StudentName != "Bobby" {
		t.Fatalf("unexpected events: %+v", result.Events)
	}
	if gw.lastTemp != extractionTemperature {
		t.Errorf("expected temperature %v, got %v", extractionTemperature, gw.lastTemp)
	}
}

func TestExtract_DistinctActivitiesStaySeparate(t *testing.T) {
	gw := &cannedGateway{reply: `[
		{"student_name":"John","objective_description":"John is practicing addition.","memo":"John added 5 of 6 problems correctly."},
		{"student_name":"John","objective_description":"John is practicing addition.","memo":"John later added 3 of 6 problems correctly."},
		{"student_name":"John","objective_description":"John is reading aloud.","memo":"John read a full page fluently."}
	]`}
	ext := New(gw, discardLogger(), nil)

	result, err := ext.Extract(context.Background(), "three activities", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(result.Events))
	}
	if result.Events[1].Memo != "John later added 3 of 6 problems correctly." {
		t.Errorf("events reordered or merged: %+v", result.Events)
	}
}

func TestExtract_DropsInvalidElements(t *testing.T) {
	gw := &cannedGateway{reply: `[
		{"student_name":"John","objective_description":"John is practicing addition.","memo":"Added 5 of 6."},
		"not an object",
		{"student_name":"Bobby","memo":"Missing the objective."},
		{"student_name":"","objective_description":"Blank name.","memo":"x"},
		{"student_name":["Amy"],"objective_description":"Wrong type.","memo":"x"},
		{"student":"Amy","objective_title":"Amy is tracing letters.","memo":"Traced 4 letters."}
	]`}
	ext := New(gw, discardLogger(), nil)

	result, err := ext.Extract(context.Background(), "mixed", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 valid events, got %d: %+v", len(result.Events), result.Events)
	}
	if result.Events[1].StudentName != "Amy" || result.Events[1].ObjectiveDescription != "Amy is tracing letters." {
		t.Errorf("aliased fields not repaired: %+v", result.Events[1])
	}
	if len(result.Dropped) != 4 {
		t.Fatalf("expected 4 drops, got %+v", result.Dropped)
	}
	wantIdx := []int{1, 2, 3, 4}
	for i, d := range result.Dropped {
		if d.Index != wantIdx[i] {
			t.Errorf("drop %d: expected index %d, got %d", i, wantIdx[i], d.Index)
		}
	}
}

func TestExtract_InvalidJSON(t *testing.T) {
	gw := &cannedGateway{reply: "this is not json"}
	ext := New(gw, discardLogger(), nil)

	_, err := ext.Extract(context.Background(), "some transcript", nil)
	var fe *llm.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestExtract_TopLevelNotList(t *testing.T) {
	gw := &cannedGateway{reply: `{"sessions": []}`}
	ext := New(gw, discardLogger(), nil)

	_, err := ext.Extract(context.Background(), "some transcript", nil)
	var fe *llm.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestExtract_EmptyTranscript(t *testing.T) {
	gw := &cannedGateway{reply: "[]"}
	ext := New(gw, discardLogger(), nil)

	result, err := ext.Extract(context.Background(), "The weather was nice today.", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Events) != 0 {
		t.Errorf("expected 0 events, got %d", len(result.Events))
	}
}

func TestExtract_UpstreamError(t *testing.T) {
	gw := &cannedGateway{err: llm.Upstream("connection refused")}
	ext := New(gw, discardLogger(), nil)

	_, err := ext.Extract(context.Background(), "x", nil)
	if !errors.Is(err, llm.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestBuildPrompt_KnownStudents(t *testing.T) {
	p := buildPrompt("John read.", []string{"John Smith", " ", "Bobby Lee"})
	if !strings.Contains(p, "- John Smith\n- Bobby Lee") {
		t.Errorf("expected known students listed, got:\n%s", p)
	}
	if !strings.Contains(p, "John read.") {
		t.Error("expected transcript in prompt")
	}

	bare := buildPrompt("John read.", nil)
	if strings.Contains(bare, "Known students") {
		t.Error("expected no known-students hint without names")
	}
}
