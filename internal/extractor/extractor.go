package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
	"github.com/MikeSquared-Agency/iepscribe/internal/metrics"
)

const extractionTemperature = 0.2

// fieldAliases maps keys older prompts and looser models emit onto the
// canonical field names.
var fieldAliases = map[string][]string{
	"student_name":          {"student_name", "student", "name"},
	"objective_description": {"objective_description", "objective_title", "objective"},
	"memo":                  {"memo", "summary", "note"},
}

type Extractor struct {
	llm     llm.Gateway
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func New(gw llm.Gateway, logger *slog.Logger, m *metrics.Recorder) *Extractor {
	return &Extractor{llm: gw, logger: logger, metrics: m}
}

// Extract splits a transcript into session events. knownStudents, when
// given, nudges the model to reuse exact catalog spellings.
//
// A response that is not JSON or not a top-level array fails with
// *llm.FormatError. Individual elements that fail validation are dropped and
// reported in Result.Dropped. An empty Result is not an error.
func (e *Extractor) Extract(ctx context.Context, transcript string, knownStudents []string) (*Result, error) {
	prompt := buildPrompt(transcript, knownStudents)

	e.logger.Info("extracting sessions from transcript",
		"transcript_len", len(transcript),
		"known_students", len(knownStudents),
	)

	raw, err := e.llm.Complete(ctx, systemPrompt, prompt, extractionTemperature)
	if err != nil {
		return nil, fmt.Errorf("llm extraction: %w", err)
	}

	var decoded any
	if err := llm.DecodeJSON(raw, &decoded); err != nil {
		e.logger.Error("failed to parse extraction response", "error", err, "raw", raw)
		return nil, fmt.Errorf("parse extraction: %w", err)
	}

	items, ok := decoded.([]any)
	if !ok {
		e.logger.Error("extraction response is not a list", "raw", raw)
		return nil, fmt.Errorf("parse extraction: %w", &llm.FormatError{Raw: raw, Err: fmt.Errorf("top-level value is %T, want array", decoded)})
	}

	result := &Result{Events: make([]ParsedSessionEvent, 0, len(items))}
	for i, item := range items {
		ev, reason := repairEvent(item)
		if reason != "" {
			e.logger.Warn("dropping invalid session event", "index", i, "reason", reason, "item", item)
			e.metrics.ValidationDrop()
			result.Dropped = append(result.Dropped, Drop{Index: i, Reason: reason})
			continue
		}
		result.Events = append(result.Events, ev)
	}

	e.logger.Info("extraction complete",
		"events", len(result.Events),
		"dropped", len(result.Dropped),
	)
	return result, nil
}

func buildPrompt(transcript string, knownStudents []string) string {
	hint := ""
	var names []string
	for _, n := range knownStudents {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, "- "+n)
		}
	}
	if len(names) > 0 {
		hint = fmt.Sprintf(knownStudentsHint, strings.Join(names, "\n"))
	}
	return fmt.Sprintf(extractionUserPrompt, hint, transcript)
}

// repairEvent coerces one loosely-typed element into a ParsedSessionEvent.
// It returns a non-empty reason when the element must be dropped.
func repairEvent(item any) (ParsedSessionEvent, string) {
	obj, ok := item.(map[string]any)
	if !ok {
		return ParsedSessionEvent{}, fmt.Sprintf("element is %T, want object", item)
	}

	var ev ParsedSessionEvent
	for _, field := range []string{"student_name", "objective_description", "memo"} {
		val, found := lookup(obj, fieldAliases[field])
		if !found {
			return ParsedSessionEvent{}, "missing field " + field
		}
		s, ok := scalarString(val)
		if !ok {
			return ParsedSessionEvent{}, fmt.Sprintf("field %s is %T, want string", field, val)
		}
		if s == "" {
			return ParsedSessionEvent{}, "empty field " + field
		}
		switch field {
		case "student_name":
			ev.StudentName = s
		case "objective_description":
			ev.ObjectiveDescription = s
		case "memo":
			ev.Memo = s
		}
	}
	return ev, ""
}

func lookup(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
