package progress

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/iepscribe/internal/catalog"
	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
	"github.com/MikeSquared-Agency/iepscribe/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func reply(text string, err error) (llm.Gateway, *string) {
	var prompt string
	return llm.GatewayFunc(func(_ context.Context, _, user string, temperature float64) (string, error) {
		prompt = user
		return text, err
	}), &prompt
}

func trialRequest() Request {
	return Request{
		Transcript: "John got 15 out of 20 right on his math test.",
		Memo:       "John got 15 out of 20 right on his math test.",
		Student:    catalog.Student{ID: uuid.New(), Name: "John", GradeLevel: "3"},
		Objective: catalog.Objective{
			ID:             uuid.New(),
			Description:    "Get 80% or more on his math assessment.",
			Type:           catalog.ObjectiveTrial,
			TargetAccuracy: 0.8,
		},
	}
}

func TestInfer_TrialFraction(t *testing.T) {
	gw, prompt := reply(`{"trials_completed": 15, "trials_total": 20}`, nil)
	in := New(gw, discardLogger(), nil)

	got := in.Infer(context.Background(), trialRequest())
	assert.Equal(t, ObjectiveProgress{TrialsCompleted: 15, TrialsTotal: 20}, got)
	assert.Contains(t, *prompt, "Objective type: trial")
	assert.Contains(t, *prompt, "Target accuracy: 0.8")
	assert.Contains(t, *prompt, "Disability type: Unknown")
}

func TestInfer_RepairsLooseNumbers(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ObjectiveProgress
	}{
		{"floats", `{"trials_completed": 7.0, "trials_total": 10.0}`, ObjectiveProgress{7, 10}},
		{"strings", `{"trials_completed": "12", "trials_total": " 15 "}`, ObjectiveProgress{12, 15}},
		{"negative", `{"trials_completed": -3, "trials_total": 5}`, ObjectiveProgress{0, 5}},
		{"fenced", "```json\n{\"trials_completed\": 50, \"trials_total\": 100}\n```", ObjectiveProgress{50, 100}},
		{"completed above total kept", `{"trials_completed": 6, "trials_total": 5}`, ObjectiveProgress{6, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, _ := reply(tt.raw, nil)
			got := New(gw, discardLogger(), nil).Infer(context.Background(), trialRequest())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInfer_BinaryClamped(t *testing.T) {
	req := trialRequest()
	req.Objective.Type = catalog.ObjectiveBinary

	for _, raw := range []string{
		`{"trials_completed": 1, "trials_total": 1}`,
		`{"trials_completed": 8, "trials_total": 10}`,
		`{"trials_completed": 0, "trials_total": 0}`,
		`{"trials_completed": 0, "trials_total": 100}`,
	} {
		gw, _ := reply(raw, nil)
		got := New(gw, discardLogger(), nil).Infer(context.Background(), req)
		assert.Contains(t, []int{0, 1}, got.TrialsCompleted, raw)
		assert.Contains(t, []int{0, 1}, got.TrialsTotal, raw)
	}
}

const fallbackMetric = `
# HELP iepscribe_progress_fallbacks_total Progress inferences that degraded to zero progress.
# TYPE iepscribe_progress_fallbacks_total counter
iepscribe_progress_fallbacks_total 1
`

func TestInfer_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{"upstream", "", llm.Upstream("timeout")},
		{"empty", "", nil},
		{"not json", "I think about 80%", nil},
		{"missing field", `{"trials_completed": 3}`, nil},
		{"wrong type", `{"trials_completed": [3], "trials_total": 5}`, nil},
		{"list", `[1, 2]`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			gw, _ := reply(tt.raw, tt.err)
			got := New(gw, discardLogger(), m).Infer(context.Background(), trialRequest())
			assert.Equal(t, Fallback, got)
			assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(fallbackMetric), "iepscribe_progress_fallbacks_total"))
		})
	}
}

func TestInfer_EnrichesObjectiveFromDescription(t *testing.T) {
	req := trialRequest()
	req.Objective.Type = ""
	req.Objective.TargetAccuracy = 0
	req.Objective.Description = "Student will answer yes/no questions with 90% accuracy"

	gw, prompt := reply(`{"trials_completed": 1, "trials_total": 1}`, nil)
	got := New(gw, discardLogger(), nil).Infer(context.Background(), req)
	assert.Equal(t, ObjectiveProgress{1, 1}, got)
	assert.Contains(t, *prompt, "Objective type: binary")
	assert.Contains(t, *prompt, "Target accuracy: 0.9")
}

func TestBuildPrompt_DefaultsMissingTarget(t *testing.T) {
	req := trialRequest()
	req.Objective.TargetAccuracy = 0
	req.Objective.Description = "Reads sight words aloud."

	p := buildPrompt(req, Enrich(req.Objective))
	assert.Contains(t, p, "Target accuracy: 1\n")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(p), `"""`))
}

func TestParseObjective(t *testing.T) {
	tests := []struct {
		desc string
		want ParsedObjective
	}{
		{
			desc: "Given a passage, student will identify the main idea with 80% accuracy on 4 out of 5 trials, as measured weekly.",
			want: ParsedObjective{Measure: MeasureTrials, TargetAccuracy: 0.8, TargetSuccesses: 4, TargetTrials: 5, Frequency: "Weekly"},
		},
		{
			desc: "Student will complete the morning routine (yes/no) daily.",
			want: ParsedObjective{Measure: MeasureBinary, Frequency: "Daily"},
		},
		{
			desc: "Student will score of at least 3 on a writing rubric.",
			want: ParsedObjective{Measure: MeasureRubric},
		},
		{
			desc: "Teacher will record minutes on task, as evaluated by classroom teacher.",
			want: ParsedObjective{Measure: MeasureContinuous, Frequency: "Classroom Teacher"},
		},
		{
			desc: "Student will request a break 3/4 opportunities through observation daily.",
			want: ParsedObjective{Measure: MeasureTrials, TargetSuccesses: 3, TargetTrials: 4, Frequency: "Observation Daily"},
		},
		{
			desc: "Improve handwriting.",
			want: ParsedObjective{Measure: MeasureTrials},
		},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got := ParseObjective(tt.desc)
			tt.want.Description = tt.desc
			assert.Equal(t, tt.want.Measure, got.Measure)
			assert.InDelta(t, tt.want.TargetAccuracy, got.TargetAccuracy, 1e-9)
			assert.Equal(t, tt.want.TargetSuccesses, got.TargetSuccesses)
			assert.Equal(t, tt.want.TargetTrials, got.TargetTrials)
			assert.Equal(t, tt.want.Frequency, got.Frequency)
			assert.Equal(t, tt.want.Description, got.Description)
		})
	}
}

func TestEnrich(t *testing.T) {
	o := Enrich(catalog.Objective{Description: "Answer 4 out of 5 comprehension questions."})
	require.Equal(t, catalog.ObjectiveTrial, o.Type)
	assert.InDelta(t, 0.8, o.TargetAccuracy, 1e-9)

	set := catalog.Objective{Description: "with 50% accuracy", Type: catalog.ObjectiveBinary, TargetAccuracy: 0.7}
	assert.Equal(t, set, Enrich(set), "populated fields are left alone")
}
