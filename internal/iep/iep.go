// Package iep turns the text of an IEP document into a structured preview.
// Parsing never writes to the catalog; saving is the caller's decision.
package iep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/iepscribe/internal/catalog"
	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
)

const parseTemperature = 0.3

// Placeholders for entries the model returned in the wrong shape.
const (
	NoAreaOfNeed = "No area of need detected"
	NoGoal       = "No goal detected"
)

// ErrEmptyText is returned when there is no document text to parse.
var ErrEmptyText = errors.New("iep text is empty")

type IEP struct {
	StudentName    string       `json:"student_name"`
	DisabilityType string       `json:"disability_type"`
	GradeLevel     string       `json:"grade_level"`
	AreasOfNeed    []AreaOfNeed `json:"areas_of_need"`
}

type AreaOfNeed struct {
	AreaName string `json:"area_name"`
	Goals    []Goal `json:"goals"`
}

type Goal struct {
	Description string      `json:"goal_description"`
	Objectives  []Objective `json:"objectives"`
}

type Objective struct {
	Description string `json:"description"`
}

type Parser struct {
	llm    llm.Gateway
	logger *slog.Logger
}

func New(gw llm.Gateway, logger *slog.Logger) *Parser {
	return &Parser{llm: gw, logger: logger}
}

// Parse asks the model for the document's structure and repairs whatever it
// returned field by field. Only a reply that is not a JSON object fails, with
// *llm.FormatError.
func (p *Parser) Parse(ctx context.Context, text string) (*IEP, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	p.logger.Info("parsing iep document", "text_len", len(text))

	raw, err := p.llm.Complete(ctx, systemPrompt, fmt.Sprintf(userPrompt, text), parseTemperature)
	if err != nil {
		return nil, fmt.Errorf("llm iep parse: %w", err)
	}

	var decoded any
	if err := llm.DecodeJSON(raw, &decoded); err != nil {
		p.logger.Error("failed to parse iep response", "error", err, "raw", raw)
		return nil, fmt.Errorf("parse iep: %w", err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		p.logger.Error("iep response is not an object", "raw", raw)
		return nil, fmt.Errorf("parse iep: %w", &llm.FormatError{Raw: raw, Err: fmt.Errorf("top-level value is %T, want object", decoded)})
	}

	doc := repair(obj)
	p.logger.Info("iep parsed", "areas_of_need", len(doc.AreasOfNeed))
	return doc, nil
}

func repair(obj map[string]any) *IEP {
	doc := &IEP{
		StudentName:    stringOr(obj["student_name"], catalog.Unknown),
		DisabilityType: stringOr(obj["disability_type"], catalog.Unknown),
		GradeLevel:     stringOr(obj["grade_level"], catalog.Unknown),
		AreasOfNeed:    []AreaOfNeed{},
	}
	for _, item := range listOf(obj["areas_of_need"]) {
		doc.AreasOfNeed = append(doc.AreasOfNeed, repairArea(item))
	}
	return doc
}

func repairArea(item any) AreaOfNeed {
	area := AreaOfNeed{AreaName: NoAreaOfNeed, Goals: []Goal{}}
	obj, ok := item.(map[string]any)
	if !ok {
		return area
	}
	area.AreaName = stringOr(obj["area_name"], NoAreaOfNeed)
	for _, g := range listOf(obj["goals"]) {
		area.Goals = append(area.Goals, repairGoal(g))
	}
	return area
}

func repairGoal(item any) Goal {
	goal := Goal{Description: NoGoal, Objectives: []Objective{}}
	obj, ok := item.(map[string]any)
	if !ok {
		return goal
	}
	goal.Description = stringOr(obj["goal_description"], NoGoal)
	for _, o := range listOf(obj["objectives"]) {
		goal.Objectives = append(goal.Objectives, repairObjective(o))
	}
	return goal
}

func repairObjective(item any) Objective {
	obj, ok := item.(map[string]any)
	if !ok {
		return Objective{Description: catalog.Unknown}
	}
	return Objective{Description: stringOr(obj["description"], catalog.Unknown)}
}

// stringOr returns v trimmed when it is a non-blank string, else fallback.
func stringOr(v any, fallback string) string {
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}

func listOf(v any) []any {
	l, _ := v.([]any)
	return l
}
