package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

// ClassSubjectRepository reads the subjects taught in a class and who teaches them.
type ClassSubjectRepository struct {
	db *sqlx.DB
}

// NewClassSubjectRepository creates a new repository.
func NewClassSubjectRepository(db *sqlx.DB) *ClassSubjectRepository {
	return &ClassSubjectRepository{db: db}
}

// ListTeachers returns the teacher label of every subject assigned to the class. Subjects
// without an assigned teacher have an empty label.
func (r *ClassSubjectRepository) ListTeachers(ctx context.Context, classID string) ([]models.SubjectTeacher, error) {
	const query = `
SELECT s.name AS subject, COALESCE(u.full_name, '') AS teacher_name
FROM class_subjects cs
JOIN subjects s ON s.id = cs.subject_id
LEFT JOIN users u ON u.id = cs.teacher_id
WHERE cs.class_id = $1
ORDER BY s.name ASC`
	var teachers []models.SubjectTeacher
	if err := r.db.SelectContext(ctx, &teachers, query, classID); err != nil {
		return nil, fmt.Errorf("list class subject teachers: %w", err)
	}
	return teachers, nil
}

// TeacherLabels indexes ListTeachers by subject name.
func (r *ClassSubjectRepository) TeacherLabels(ctx context.Context, classID string) (map[string]string, error) {
	teachers, err := r.ListTeachers(ctx, classID)
	if err != nil {
		return nil, err
	}
	labels := make(map[string]string, len(teachers))
	for _, t := range teachers {
		if t.TeacherName != "" {
			labels[t.Subject] = t.TeacherName
		}
	}
	return labels, nil
}

// HasTeacher reports whether the teacher is assigned to any subject of the class.
func (r *ClassSubjectRepository) HasTeacher(ctx context.Context, classID, teacherID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM class_subjects WHERE class_id = $1 AND teacher_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, classID, teacherID); err != nil {
		return false, fmt.Errorf("check class teacher: %w", err)
	}
	return exists, nil
}
