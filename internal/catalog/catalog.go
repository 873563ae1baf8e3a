// Package catalog defines the read-only student and objective records the
// pipeline resolves against, and the Provider contract that serves them.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound reports a student or objective outside the teacher's catalog.
var ErrNotFound = errors.New("not found in catalog")

// Unknown stands in for an optional field the system of record left empty.
const Unknown = "Unknown"

// ObjectiveType distinguishes how progress on an objective is measured.
type ObjectiveType string

const (
	ObjectiveBinary ObjectiveType = "binary"
	ObjectiveTrial  ObjectiveType = "trial"
)

// ParseObjectiveType normalises stored type labels. "trials" is accepted as
// an alias of trial; anything unrecognised reports ok=false.
func ParseObjectiveType(s string) (ObjectiveType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binary":
		return ObjectiveBinary, true
	case "trial", "trials":
		return ObjectiveTrial, true
	default:
		return "", false
	}
}

type Student struct {
	ID               uuid.UUID
	Name             string
	GradeLevel       string
	DisabilityType   string
	NarrativeSummary string
}

type Objective struct {
	ID             uuid.UUID
	Description    string
	Type           ObjectiveType
	TargetAccuracy float64 // in [0,1]; 0 when unset
	SubjectAreaID  uuid.UUID
	GoalID         uuid.UUID
	StudentID      uuid.UUID

	// Labels joined from the subject area and goal, Unknown when absent.
	SubjectArea string
	Goal        string
}

// Provider reads catalog records scoped to one teacher.
type Provider interface {
	Students(ctx context.Context, teacherID uuid.UUID) ([]Student, error)
	Objectives(ctx context.Context, teacherID, studentID uuid.UUID) ([]Objective, error)
}

// OrUnknown returns s trimmed, or Unknown when it is blank.
func OrUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Unknown
	}
	return s
}

// Normalize fills blank optional fields with Unknown.
func (s Student) Normalize() Student {
	s.GradeLevel = OrUnknown(s.GradeLevel)
	s.DisabilityType = OrUnknown(s.DisabilityType)
	s.NarrativeSummary = OrUnknown(s.NarrativeSummary)
	return s
}

// Normalize fills blank labels with Unknown, defaults the type to trial and
// rescales percentage-style accuracies (e.g. 80) into [0,1].
func (o Objective) Normalize() Objective {
	o.SubjectArea = OrUnknown(o.SubjectArea)
	o.Goal = OrUnknown(o.Goal)
	if t, ok := ParseObjectiveType(string(o.Type)); ok {
		o.Type = t
	} else {
		o.Type = ObjectiveTrial
	}
	if o.TargetAccuracy > 1 && o.TargetAccuracy <= 100 {
		o.TargetAccuracy /= 100
	}
	if o.TargetAccuracy < 0 || o.TargetAccuracy > 1 {
		o.TargetAccuracy = 0
	}
	return o
}

// Names returns the student names in catalog order.
func Names(students []Student) []string {
	names := make([]string, len(students))
	for i, s := range students {
		names[i] = s.Name
	}
	return names
}
