package iep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/iepscribe/internal/catalog"
	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
)

func newParser(reply string, err error, calls *int) *Parser {
	gw := llm.GatewayFunc(func(_ context.Context, system, user string, temperature float64) (string, error) {
		if calls != nil {
			*calls++
		}
		return reply, err
	})
	return New(gw, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParse_WellFormed(t *testing.T) {
	var gotSystem, gotUser string
	var gotTemp float64
	gw := llm.GatewayFunc(func(_ context.Context, system, user string, temperature float64) (string, error) {
		gotSystem, gotUser, gotTemp = system, user, temperature
		return "```json\n" + `{
			"student_name": "Maya Lopez",
			"disability_type": "Specific Learning Disability",
			"grade_level": "4",
			"areas_of_need": [
				{"area_name": "Math", "goals": [
					{"goal_description": "Maya will add two-digit numbers.", "objectives": [
						{"description": "Add with regrouping in 4 of 5 trials."}
					]}
				]}
			]
		}` + "\n```", nil
	})
	p := New(gw, slog.New(slog.NewTextHandler(io.Discard, nil)))

	doc, err := p.Parse(context.Background(), "Student: Maya Lopez ...")
	require.NoError(t, err)

	assert.Equal(t, parseTemperature, gotTemp)
	assert.Equal(t, systemPrompt, gotSystem)
	assert.True(t, strings.HasSuffix(gotUser, "Student: Maya Lopez ..."))

	assert.Equal(t, "Maya Lopez", doc.StudentName)
	assert.Equal(t, "Specific Learning Disability", doc.DisabilityType)
	assert.Equal(t, "4", doc.GradeLevel)
	require.Len(t, doc.AreasOfNeed, 1)
	assert.Equal(t, "Math", doc.AreasOfNeed[0].AreaName)
	require.Len(t, doc.AreasOfNeed[0].Goals, 1)
	assert.Equal(t, []Objective{{Description: "Add with regrouping in 4 of 5 trials."}}, doc.AreasOfNeed[0].Goals[0].Objectives)
}

func TestParse_RepairsTopLevelFields(t *testing.T) {
	p := newParser(`{"student_name": 42, "grade_level": "  ", "areas_of_need": "Math"}`, nil, nil)

	doc, err := p.Parse(context.Background(), "text")
	require.NoError(t, err)

	assert.Equal(t, catalog.Unknown, doc.StudentName)
	assert.Equal(t, catalog.Unknown, doc.DisabilityType)
	assert.Equal(t, catalog.Unknown, doc.GradeLevel)
	assert.NotNil(t, doc.AreasOfNeed)
	assert.Empty(t, doc.AreasOfNeed)
}

func TestParse_RepairsMalformedAreas(t *testing.T) {
	p := newParser(`{"areas_of_need": [
		"Reading",
		{"area_name": ["Math"], "goals": {"goal_description": "x"}},
		{"area_name": "Writing"}
	]}`, nil, nil)

	doc, err := p.Parse(context.Background(), "text")
	require.NoError(t, err)

	want := []AreaOfNeed{
		{AreaName: NoAreaOfNeed, Goals: []Goal{}},
		{AreaName: NoAreaOfNeed, Goals: []Goal{}},
		{AreaName: "Writing", Goals: []Goal{}},
	}
	assert.Equal(t, want, doc.AreasOfNeed)
}

func TestParse_RepairsMalformedGoalsAndObjectives(t *testing.T) {
	p := newParser(`{"student_name": "Sam", "areas_of_need": [{"area_name": "Reading", "goals": [
		7,
		{"goal_description": null, "objectives": "read daily"},
		{"goal_description": "Sam will decode CVC words.", "objectives": [
			"Decode 10 words",
			{"description": 3},
			{},
			{"description": "Decode 8 of 10 CVC words."}
		]}
	]}]}`, nil, nil)

	doc, err := p.Parse(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, doc.AreasOfNeed, 1)

	goals := doc.AreasOfNeed[0].Goals
	require.Len(t, goals, 3)
	assert.Equal(t, Goal{Description: NoGoal, Objectives: []Objective{}}, goals[0])
	assert.Equal(t, Goal{Description: NoGoal, Objectives: []Objective{}}, goals[1])
	assert.Equal(t, "Sam will decode CVC words.", goals[2].Description)
	assert.Equal(t, []Objective{
		{Description: catalog.Unknown},
		{Description: catalog.Unknown},
		{Description: catalog.Unknown},
		{Description: "Decode 8 of 10 CVC words."},
	}, goals[2].Objectives)
}

func TestParse_NonObjectJSON(t *testing.T) {
	for _, reply := range []string{`[{"student_name": "Sam"}]`, `"Sam"`, `null`, `not json at all`} {
		t.Run(reply, func(t *testing.T) {
			p := newParser(reply, nil, nil)

			_, err := p.Parse(context.Background(), "text")
			var fe *llm.FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, reply, fe.Raw)
		})
	}
}

func TestParse_UpstreamError(t *testing.T) {
	p := newParser("", llm.Upstream("connection refused"), nil)

	_, err := p.Parse(context.Background(), "text")
	assert.True(t, errors.Is(err, llm.ErrUpstream), "got %v", err)
}

func TestParse_EmptyTextSkipsModel(t *testing.T) {
	calls := 0
	p := newParser("{}", nil, &calls)

	_, err := p.Parse(context.Background(), " \n\t")
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Zero(t, calls)
}
