package hermes

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	// SubjectSessionMutated carries session create/update/delete notices from
	// the system of record.
	SubjectSessionMutated = "iep.session.mutated"

	// SubjectSummaryUpdated announces a regenerated student summary.
	SubjectSummaryUpdated = "iep.student.summary.updated"

	// SubjectTranscriptSubmitted requests asynchronous analysis of a transcript.
	SubjectTranscriptSubmitted = "iep.transcript.submitted"

	// SubjectTranscriptAnalyzed announces a finished transcript analysis.
	SubjectTranscriptAnalyzed = "iep.transcript.analyzed"
)

// Session mutation actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

type SessionMutated struct {
	TeacherID string `json:"teacher_id"`
	StudentID string `json:"student_id"`
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
}

// IDs validates the event and returns its parsed teacher and student IDs.
func (e SessionMutated) IDs() (teacherID, studentID uuid.UUID, err error) {
	switch e.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return uuid.Nil, uuid.Nil, fmt.Errorf("unknown action %q", e.Action)
	}
	if teacherID, err = uuid.Parse(e.TeacherID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("teacher_id: %w", err)
	}
	if studentID, err = uuid.Parse(e.StudentID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("student_id: %w", err)
	}
	return teacherID, studentID, nil
}

type SummaryUpdated struct {
	TeacherID string `json:"teacher_id"`
	StudentID string `json:"student_id"`
	Summary   string `json:"summary"`
	Fallback  bool   `json:"fallback"`
}

type TranscriptSubmitted struct {
	RequestID  string `json:"request_id"`
	TeacherID  string `json:"teacher_id"`
	Transcript string `json:"transcript"`
}

// TranscriptAnalyzed reports the outcome of an analysis. Sessions holds the
// suggested sessions when Result is "ok".
type TranscriptAnalyzed struct {
	RequestID string `json:"request_id,omitempty"`
	TeacherID string `json:"teacher_id"`
	Result    string `json:"result"`
	Count     int    `json:"count"`
	Sessions  any    `json:"sessions,omitempty"`
	Error     string `json:"error,omitempty"`
}
