package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

const termColumns = "id, name, type, academic_year, start_date, end_date, is_active"

// TermRepository reads academic terms, which give bulletins their period window and labels.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository instantiates a term repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// FindByID returns a term by id.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.Term, error) {
	var term models.Term
	query := fmt.Sprintf("SELECT %s FROM terms WHERE id = $1", termColumns)
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, fmt.Errorf("find term: %w", err)
	}
	return &term, nil
}

// FindActive returns the currently active term.
func (r *TermRepository) FindActive(ctx context.Context) (*models.Term, error) {
	var term models.Term
	query := fmt.Sprintf("SELECT %s FROM terms WHERE is_active = TRUE ORDER BY start_date DESC LIMIT 1", termColumns)
	if err := r.db.GetContext(ctx, &term, query); err != nil {
		return nil, fmt.Errorf("find active term: %w", err)
	}
	return &term, nil
}
