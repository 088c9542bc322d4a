package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

const bulletinJobColumns = "id, class_id, term_id, params, status, progress, result_url, summary, created_by, created_at, finished_at, error_message"

// BulletinJobRepository persists class bulletin job metadata.
type BulletinJobRepository struct {
	db *sqlx.DB
}

// NewBulletinJobRepository constructs the repository.
func NewBulletinJobRepository(db *sqlx.DB) *BulletinJobRepository {
	return &BulletinJobRepository{db: db}
}

// Create inserts a new job row with generated defaults.
func (r *BulletinJobRepository) Create(ctx context.Context, job *models.BulletinJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.BulletinJobQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO bulletin_jobs (id, class_id, term_id, params, status, progress, result_url, summary, created_by, created_at, finished_at, error_message)
VALUES (:id, :class_id, :term_id, :params, :status, :progress, :result_url, :summary, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create bulletin job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *BulletinJobRepository) GetByID(ctx context.Context, id string) (*models.BulletinJob, error) {
	query := fmt.Sprintf("SELECT %s FROM bulletin_jobs WHERE id = $1", bulletinJobColumns)
	var job models.BulletinJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, fmt.Errorf("get bulletin job: %w", err)
	}
	return &job, nil
}

// UpdateBulletinJobParams defines the mutable fields. Nil fields are left untouched.
type UpdateBulletinJobParams struct {
	Status       *models.BulletinJobStatus
	Progress     *int
	ResultURL    *string
	Summary      *models.BulletinJobSummary
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a job row.
func (r *BulletinJobRepository) Update(ctx context.Context, id string, params UpdateBulletinJobParams) error {
	set := make([]string, 0, 6)
	args := make([]interface{}, 0, 7)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.ResultURL != nil {
		add("result_url", *params.ResultURL)
	}
	if params.Summary != nil {
		add("summary", *params.Summary)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE bulletin_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update bulletin job: %w", err)
	}
	return nil
}

// ListByStatus fetches the oldest jobs in any of the statuses, used for cold start recovery.
func (r *BulletinJobRepository) ListByStatus(ctx context.Context, statuses []models.BulletinJobStatus, limit int) ([]models.BulletinJob, error) {
	if limit <= 0 {
		limit = 20
	}
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	query := fmt.Sprintf("SELECT %s FROM bulletin_jobs WHERE status = ANY($1) ORDER BY created_at ASC LIMIT $2", bulletinJobColumns)
	var jobs []models.BulletinJob
	if err := r.db.SelectContext(ctx, &jobs, query, pq.Array(values), limit); err != nil {
		return nil, fmt.Errorf("list bulletin jobs by status: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore retrieves completed jobs prior to cutoff for cleanup.
func (r *BulletinJobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.BulletinJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM bulletin_jobs WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 AND result_url IS NOT NULL ORDER BY finished_at ASC LIMIT $2", bulletinJobColumns)
	var jobs []models.BulletinJob
	if err := r.db.SelectContext(ctx, &jobs, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished bulletin jobs: %w", err)
	}
	return jobs, nil
}

// ClearResult drops the download link of an expired job.
func (r *BulletinJobRepository) ClearResult(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE bulletin_jobs SET result_url = NULL WHERE id = $1`, id); err != nil {
		return fmt.Errorf("clear bulletin job result: %w", err)
	}
	return nil
}
