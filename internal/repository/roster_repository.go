package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

const rosterSelect = `SELECT e.student_id, s.nis, s.full_name, e.class_id, c.name AS class_name, e.term_id
FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN classes c ON c.id = e.class_id`

// RosterRepository resolves active enrollments into printable student identities.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// ListActive returns the active students of a class for a term ordered by full name.
func (r *RosterRepository) ListActive(ctx context.Context, classID, termID string) ([]models.RosterStudent, error) {
	query := rosterSelect + `
WHERE e.class_id = $1 AND e.term_id = $2 AND e.status = 'ACTIVE'
ORDER BY s.full_name ASC, e.student_id ASC`
	var students []models.RosterStudent
	if err := r.db.SelectContext(ctx, &students, query, classID, termID); err != nil {
		return nil, fmt.Errorf("list active roster: %w", err)
	}
	if students == nil {
		students = []models.RosterStudent{}
	}
	return students, nil
}

// FindEnrollment returns the active enrollment of a student for a term. It wraps sql.ErrNoRows
// when the student is not enrolled.
func (r *RosterRepository) FindEnrollment(ctx context.Context, studentID, termID string) (*models.RosterStudent, error) {
	query := rosterSelect + `
WHERE e.student_id = $1 AND e.term_id = $2 AND e.status = 'ACTIVE'
ORDER BY e.joined_at DESC
LIMIT 1`
	var student models.RosterStudent
	if err := r.db.GetContext(ctx, &student, query, studentID, termID); err != nil {
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &student, nil
}

// StudentExists reports whether the student record exists at all.
func (r *RosterRepository) StudentExists(ctx context.Context, studentID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)`, studentID); err != nil {
		return false, fmt.Errorf("check student: %w", err)
	}
	return exists, nil
}
