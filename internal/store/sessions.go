package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/iepscribe/internal/narrative"
	"github.com/MikeSquared-Agency/iepscribe/internal/weekly"
)

// RecentSessions returns the student's latest sessions, newest first, with
// the objective, goal and subject area labels joined.
func (s *Store) RecentSessions(ctx context.Context, teacherID, studentID uuid.UUID, limit int) ([]narrative.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT se.created_at, COALESCE(se.raw_input, ''), COALESCE(se.memo, ''),
		       COALESCE(o.description, ''), COALESCE(sa.name, ''), COALESCE(g.title, '')
		FROM sessions se
		LEFT JOIN objectives o ON o.id = se.objective_id
		LEFT JOIN subject_areas sa ON sa.id = o.subject_area_id
		LEFT JOIN goals g ON g.id = o.goal_id
		WHERE se.teacher_id = $1 AND se.student_id = $2
		ORDER BY se.created_at DESC
		LIMIT $3`,
		teacherID, studentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []narrative.Session
	for rows.Next() {
		var sess narrative.Session
		if err := rows.Scan(&sess.CreatedAt, &sess.RawInput, &sess.Memo, &sess.Objective, &sess.SubjectArea, &sess.Goal); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateSummary overwrites the student's narrative summary.
func (s *Store) UpdateSummary(ctx context.Context, teacherID, studentID uuid.UUID, summary string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE students SET summary = $1
		WHERE id = $2 AND teacher_id = $3`,
		summary, studentID, teacherID,
	)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update summary: student %s not found", studentID)
	}
	return nil
}

// TeacherObjectives lists every objective of the teacher with the student
// name and subject area joined.
func (s *Store) TeacherObjectives(ctx context.Context, teacherID uuid.UUID) ([]weekly.ObjectiveStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.description, COALESCE(st.name, ''), COALESCE(sa.name, '')
		FROM objectives o
		LEFT JOIN students st ON st.id = o.student_id
		LEFT JOIN subject_areas sa ON sa.id = o.subject_area_id
		WHERE o.teacher_id = $1
		ORDER BY st.name, o.created_at, o.id`,
		teacherID,
	)
	if err != nil {
		return nil, fmt.Errorf("query teacher objectives: %w", err)
	}
	defer rows.Close()

	var out []weekly.ObjectiveStatus
	for rows.Next() {
		var o weekly.ObjectiveStatus
		if err := rows.Scan(&o.ObjectiveID, &o.Description, &o.StudentName, &o.SubjectArea); err != nil {
			return nil, fmt.Errorf("scan teacher objective: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// LoggedObjectiveIDs returns the distinct objectives with a session created
// in [start, end).
func (s *Store) LoggedObjectiveIDs(ctx context.Context, teacherID uuid.UUID, start, end time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT se.objective_id
		FROM sessions se
		JOIN objectives o ON o.id = se.objective_id
		WHERE o.teacher_id = $1 AND se.created_at >= $2 AND se.created_at < $3`,
		teacherID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("query logged objectives: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan objective id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
