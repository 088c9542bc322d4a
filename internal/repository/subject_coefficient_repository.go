package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

// SubjectCoefficientRepository reads the configured subject weights used by the table
// coefficient policy.
type SubjectCoefficientRepository struct {
	db *sqlx.DB
}

// NewSubjectCoefficientRepository constructs the repository.
func NewSubjectCoefficientRepository(db *sqlx.DB) *SubjectCoefficientRepository {
	return &SubjectCoefficientRepository{db: db}
}

// TableForClass returns subject weights for a class. Rows with a NULL class_id are school-wide
// defaults; class-specific rows override them.
func (r *SubjectCoefficientRepository) TableForClass(ctx context.Context, classID string) (map[string]float64, error) {
	const query = `
SELECT subject, coefficient
FROM subject_coefficients
WHERE class_id = $1 OR class_id IS NULL
ORDER BY class_id NULLS FIRST, subject ASC`
	var rows []models.SubjectCoefficient
	if err := r.db.SelectContext(ctx, &rows, query, classID); err != nil {
		return nil, fmt.Errorf("list subject coefficients: %w", err)
	}
	table := make(map[string]float64, len(rows))
	for _, row := range rows {
		table[row.Subject] = row.Coefficient
	}
	return table, nil
}
