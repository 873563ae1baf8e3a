// Package resolver matches extracted session events to ranked candidate
// students and objectives from the catalog.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/iepscribe/internal/catalog"
	"github.com/MikeSquared-Agency/iepscribe/internal/embedding"
	"github.com/MikeSquared-Agency/iepscribe/internal/extractor"
)

const (
	DefaultStudentTopK   = 3
	DefaultObjectiveTopK = 3
)

// ErrEmptyCatalog means the teacher has no students to match against.
var ErrEmptyCatalog = errors.New("no students found for teacher")

// Candidate is a catalog entity with its similarity to the query text.
type Candidate[T any] struct {
	Entity     T       `json:"entity"`
	Similarity float64 `json:"similarity"`
}

// StudentMatch groups the ranked objectives of one candidate student.
type StudentMatch struct {
	Student    Candidate[catalog.Student]     `json:"student"`
	Objectives []Candidate[catalog.Objective] `json:"objectives"`
}

// Ranker is the part of embedding.Engine the resolver needs.
type Ranker interface {
	Rank(ctx context.Context, query string, candidates []embedding.Candidate, topK int) ([]embedding.Match, error)
}

type Resolver struct {
	catalog       catalog.Provider
	ranker        Ranker
	logger        *slog.Logger
	StudentTopK   int
	ObjectiveTopK int
}

func New(p catalog.Provider, r Ranker, logger *slog.Logger) *Resolver {
	return &Resolver{
		catalog:       p,
		ranker:        r,
		logger:        logger,
		StudentTopK:   DefaultStudentTopK,
		ObjectiveTopK: DefaultObjectiveTopK,
	}
}

// Resolve ranks students by name against ev.StudentName and, for every
// matched student, ranks only that student's objectives against
// ev.ObjectiveDescription. Matched students without objectives are kept with
// an empty list. students is the teacher's full roster, read once per
// transcript by the caller.
func (r *Resolver) Resolve(ctx context.Context, teacherID uuid.UUID, ev extractor.ParsedSessionEvent, students []catalog.Student) ([]StudentMatch, error) {
	if len(students) == 0 {
		return nil, ErrEmptyCatalog
	}

	studentCands := make([]embedding.Candidate, len(students))
	for i, s := range students {
		studentCands[i] = embedding.Candidate{ID: s.ID.String(), Text: s.Name}
	}

	ranked, err := r.ranker.Rank(ctx, ev.StudentName, studentCands, r.StudentTopK)
	if err != nil {
		return nil, fmt.Errorf("rank students: %w", err)
	}

	matches := make([]StudentMatch, 0, len(ranked))
	for _, m := range ranked {
		student := students[m.Index]

		objectives, err := r.catalog.Objectives(ctx, teacherID, student.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch objectives for student %s: %w", student.ID, err)
		}

		objMatches, err := r.rankObjectives(ctx, ev.ObjectiveDescription, objectives)
		if err != nil {
			return nil, fmt.Errorf("rank objectives for student %s: %w", student.ID, err)
		}

		matches = append(matches, StudentMatch{
			Student:    Candidate[catalog.Student]{Entity: student, Similarity: m.Similarity},
			Objectives: objMatches,
		})
	}

	r.logger.Debug("resolved session event",
		"student_query", ev.StudentName,
		"student_matches", len(matches),
	)
	return matches, nil
}

func (r *Resolver) rankObjectives(ctx context.Context, query string, objectives []catalog.Objective) ([]Candidate[catalog.Objective], error) {
	out := []Candidate[catalog.Objective]{}
	if len(objectives) == 0 {
		return out, nil
	}

	cands := make([]embedding.Candidate, len(objectives))
	for i, o := range objectives {
		cands[i] = embedding.Candidate{ID: o.ID.String(), Text: o.Description}
	}

	ranked, err := r.ranker.Rank(ctx, query, cands, r.ObjectiveTopK)
	if err != nil {
		return nil, err
	}
	for _, m := range ranked {
		out = append(out, Candidate[catalog.Objective]{Entity: objectives[m.Index], Similarity: m.Similarity})
	}
	return out, nil
}

// Best returns the highest-scoring objective across all matched students
// together with its student. Ties favour the higher-ranked student.
func Best(matches []StudentMatch) (catalog.Student, catalog.Objective, bool) {
	var (
		bestStudent catalog.Student
		bestObj     catalog.Objective
		bestScore   float64
		found       bool
	)
	for _, sm := range matches {
		for _, om := range sm.Objectives {
			if !found || om.Similarity > bestScore {
				bestStudent, bestObj, bestScore, found = sm.Student.Entity, om.Entity, om.Similarity, true
			}
		}
	}
	return bestStudent, bestObj, found
}
