package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/iepscribe/internal/catalog"
	"github.com/MikeSquared-Agency/iepscribe/internal/progress"
)

// Students returns every student of the teacher, ordered by name.
func (s *Store) Students(ctx context.Context, teacherID uuid.UUID) ([]catalog.Student, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, COALESCE(grade_level, ''), COALESCE(disability_type, ''), COALESCE(summary, '')
		FROM students
		WHERE teacher_id = $1
		ORDER BY name, id`,
		teacherID,
	)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var out []catalog.Student
	for rows.Next() {
		var st catalog.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.GradeLevel, &st.DisabilityType, &st.NarrativeSummary); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, st.Normalize())
	}
	return out, rows.Err()
}

// Student returns one of the teacher's students.
func (s *Store) Student(ctx context.Context, teacherID, studentID uuid.UUID) (catalog.Student, error) {
	var st catalog.Student
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(grade_level, ''), COALESCE(disability_type, ''), COALESCE(summary, '')
		FROM students
		WHERE id = $1 AND teacher_id = $2`,
		studentID, teacherID,
	).Scan(&st.ID, &st.Name, &st.GradeLevel, &st.DisabilityType, &st.NarrativeSummary)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Student{}, fmt.Errorf("get student %s: %w", studentID, catalog.ErrNotFound)
	}
	if err != nil {
		return catalog.Student{}, fmt.Errorf("get student %s: %w", studentID, err)
	}
	return st.Normalize(), nil
}

// Objectives returns one student's objectives with goal and subject area
// labels joined. Missing types and targets are filled from the wording.
func (s *Store) Objectives(ctx context.Context, teacherID, studentID uuid.UUID) ([]catalog.Objective, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.description, COALESCE(o.objective_type, ''), COALESCE(o.target_accuracy, 0)::float8,
		       o.subject_area_id, o.goal_id, o.student_id,
		       COALESCE(sa.name, ''), COALESCE(g.title, '')
		FROM objectives o
		LEFT JOIN subject_areas sa ON sa.id = o.subject_area_id
		LEFT JOIN goals g ON g.id = o.goal_id
		WHERE o.teacher_id = $1 AND o.student_id = $2
		ORDER BY o.created_at, o.id`,
		teacherID, studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query objectives: %w", err)
	}
	defer rows.Close()

	var out []catalog.Objective
	for rows.Next() {
		var (
			o                    catalog.Objective
			rawType              string
			subjectArea, goalRef uuid.NullUUID
		)
		if err := rows.Scan(&o.ID, &o.Description, &rawType, &o.TargetAccuracy,
			&subjectArea, &goalRef, &o.StudentID, &o.SubjectArea, &o.Goal); err != nil {
			return nil, fmt.Errorf("scan objective: %w", err)
		}
		o.Type, _ = catalog.ParseObjectiveType(rawType)
		o.SubjectAreaID = subjectArea.UUID
		o.GoalID = goalRef.UUID
		out = append(out, progress.Enrich(o).Normalize())
	}
	return out, rows.Err()
}
