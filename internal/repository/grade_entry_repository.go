package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

const gradeEntryColumns = "id, student_id, subject, kind, assessed_on, score, coefficient"

// GradeEntryRepository reads the grade ledger. Entries come back in recording order, which
// decides the first-entry coefficient of each subject.
type GradeEntryRepository struct {
	db *sqlx.DB
}

// NewGradeEntryRepository constructs the repository.
func NewGradeEntryRepository(db *sqlx.DB) *GradeEntryRepository {
	return &GradeEntryRepository{db: db}
}

// ListByStudent returns the ledger of one student inside the window.
func (r *GradeEntryRepository) ListByStudent(ctx context.Context, studentID string, window models.DateWindow) ([]models.GradeEntry, error) {
	where := []string{"student_id = $1"}
	args := []interface{}{studentID}
	where, args = appendWindow(where, args, window)

	query := fmt.Sprintf("SELECT %s FROM grade_entries WHERE %s ORDER BY assessed_on ASC, created_at ASC, id ASC",
		gradeEntryColumns, strings.Join(where, " AND "))
	var entries []models.GradeEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list grade entries: %w", err)
	}
	if entries == nil {
		entries = []models.GradeEntry{}
	}
	return entries, nil
}

// ListByStudents returns the ledgers of many students keyed by student ID. Students without
// entries are absent from the map.
func (r *GradeEntryRepository) ListByStudents(ctx context.Context, studentIDs []string, window models.DateWindow) (map[string][]models.GradeEntry, error) {
	result := make(map[string][]models.GradeEntry, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}
	where := []string{"student_id = ANY($1)"}
	args := []interface{}{pq.Array(studentIDs)}
	where, args = appendWindow(where, args, window)

	query := fmt.Sprintf("SELECT %s FROM grade_entries WHERE %s ORDER BY student_id ASC, assessed_on ASC, created_at ASC, id ASC",
		gradeEntryColumns, strings.Join(where, " AND "))
	var entries []models.GradeEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list class grade entries: %w", err)
	}
	for _, entry := range entries {
		result[entry.StudentID] = append(result[entry.StudentID], entry)
	}
	return result, nil
}

func appendWindow(where []string, args []interface{}, window models.DateWindow) ([]string, []interface{}) {
	if window.Start != nil {
		args = append(args, window.Start.Format("2006-01-02"))
		where = append(where, fmt.Sprintf("assessed_on >= $%d::date", len(args)))
	}
	if window.End != nil {
		args = append(args, window.End.Format("2006-01-02"))
		where = append(where, fmt.Sprintf("assessed_on <= $%d::date", len(args)))
	}
	return where, args
}
