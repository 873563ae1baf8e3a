// Package progress estimates trial counts for a session against one
// objective. Inference is advisory: every failure degrades to zero progress.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/iepscribe/internal/catalog"
	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
	"github.com/MikeSquared-Agency/iepscribe/internal/metrics"
)

const inferenceTemperature = 0.1

// ObjectiveProgress counts trials for one session. TrialsCompleted may exceed
// TrialsTotal; callers sanity-check before persisting.
type ObjectiveProgress struct {
	TrialsCompleted int `json:"trials_completed"`
	TrialsTotal     int `json:"trials_total"`
}

// Fallback is the zero-progress result used whenever inference fails or no
// objective was resolved.
var Fallback = ObjectiveProgress{}

type Request struct {
	Transcript string
	Memo       string
	Student    catalog.Student
	Objective  catalog.Objective
}

type Inferencer struct {
	llm     llm.Gateway
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func New(gw llm.Gateway, logger *slog.Logger, m *metrics.Recorder) *Inferencer {
	return &Inferencer{llm: gw, logger: logger, metrics: m}
}

// Infer asks the model for trial counts. It never fails: gateway errors,
// unparseable output and missing fields all yield Fallback.
func (in *Inferencer) Infer(ctx context.Context, req Request) ObjectiveProgress {
	obj := Enrich(req.Objective).Normalize()
	prompt := buildPrompt(req, obj)

	raw, err := in.llm.Complete(ctx, systemPrompt, prompt, inferenceTemperature)
	if err != nil {
		return in.fallback("llm inference failed", err, obj, "")
	}

	var decoded map[string]any
	if err := llm.DecodeJSON(raw, &decoded); err != nil {
		return in.fallback("failed to parse inference response", err, obj, raw)
	}

	p, err := repair(decoded)
	if err != nil {
		return in.fallback("invalid inference response", err, obj, raw)
	}

	if obj.Type == catalog.ObjectiveBinary {
		p = clampBinary(p)
	}

	in.logger.Debug("inferred objective progress",
		"objective_id", obj.ID,
		"trials_completed", p.TrialsCompleted,
		"trials_total", p.TrialsTotal,
	)
	return p
}

func (in *Inferencer) fallback(msg string, err error, obj catalog.Objective, raw string) ObjectiveProgress {
	attrs := []any{"error", err, "objective_id", obj.ID}
	if raw != "" {
		attrs = append(attrs, "raw", raw)
	}
	in.logger.Warn(msg, attrs...)
	in.metrics.InferenceFallback()
	return Fallback
}

func buildPrompt(req Request, obj catalog.Objective) string {
	s := req.Student.Normalize()
	target := obj.TargetAccuracy
	if target <= 0 {
		target = 1
	}
	return fmt.Sprintf(inferenceUserPrompt,
		s.Name,
		s.GradeLevel,
		s.DisabilityType,
		s.NarrativeSummary,
		obj.Description,
		obj.Type,
		strconv.FormatFloat(target, 'f', -1, 64),
		catalog.OrUnknown(req.Memo),
		req.Transcript,
	)
}

// repair coerces the two counts from whatever numeric shape the model used.
func repair(obj map[string]any) (ObjectiveProgress, error) {
	completed, err := count(obj, "trials_completed")
	if err != nil {
		return ObjectiveProgress{}, err
	}
	total, err := count(obj, "trials_total")
	if err != nil {
		return ObjectiveProgress{}, err
	}
	return ObjectiveProgress{TrialsCompleted: completed, TrialsTotal: total}, nil
}

func count(obj map[string]any, key string) (int, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing field %s", key)
	}

	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", key, err)
		}
		f = parsed
	case bool:
		if t {
			f = 1
		}
	default:
		return 0, fmt.Errorf("field %s is %T, want number", key, v)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("field %s is not finite", key)
	}
	if f < 0 {
		return 0, nil
	}
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("field %s out of range", key)
	}
	return int(math.Round(f)), nil
}

func clampBinary(p ObjectiveProgress) ObjectiveProgress {
	bit := func(n int) int {
		if n > 0 {
			return 1
		}
		return 0
	}
	return ObjectiveProgress{TrialsCompleted: bit(p.TrialsCompleted), TrialsTotal: bit(p.TrialsTotal)}
}
