package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

var bulletinJobRowColumns = []string{"id", "class_id", "term_id", "params", "status", "progress", "result_url", "summary", "created_by", "created_at", "finished_at", "error_message"}

func TestBulletinJobRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewBulletinJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bulletin_jobs")).
		WithArgs(sqlmock.AnyArg(), "class-1", "term-1", sqlmock.AnyArg(), "QUEUED", 0, nil, sqlmock.AnyArg(), "user-1", sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.BulletinJob{
		ClassID:   "class-1",
		TermID:    "term-1",
		Params:    models.BulletinJobParams{Order: models.BulletinOrderRank},
		CreatedBy: "user-1",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NotEmpty(t, job.ID)
	assert.Equal(t, models.BulletinJobQueued, job.Status)

	rows := sqlmock.NewRows(bulletinJobRowColumns).
		AddRow(job.ID, "class-1", "term-1", `{"order":"rank"}`, "FINISHED", 100, "/api/v1/bulletins/download/tok",
			`{"succeeded":["stu-1"],"failed":[{"studentId":"stu-2","reason":"render failed"}]}`, "user-1", time.Now(), time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bulletin_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BulletinOrderRank, fetched.Params.Order)
	assert.Equal(t, []string{"stu-1"}, fetched.Summary.Succeeded)
	require.Len(t, fetched.Summary.Failed, 1)
	assert.Equal(t, "stu-2", fetched.Summary.Failed[0].StudentID)
	require.NotNil(t, fetched.ResultURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulletinJobRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewBulletinJobRepository(db)

	now := time.Now()
	status := models.BulletinJobFinished
	progress := 100
	summary := models.BulletinJobSummary{Succeeded: []string{"stu-1"}}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bulletin_jobs SET status = $1, progress = $2, summary = $3, finished_at = $4 WHERE id = $5")).
		WithArgs(status, progress, sqlmock.AnyArg(), now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateBulletinJobParams{
		Status:     &status,
		Progress:   &progress,
		Summary:    &summary,
		FinishedAt: &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulletinJobRepositoryUpdateNoop(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	require.NoError(t, NewBulletinJobRepository(db).Update(context.Background(), "job-1", UpdateBulletinJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulletinJobRepositoryListByStatus(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows(bulletinJobRowColumns).
		AddRow("job-1", "class-1", "term-1", `{}`, "PROCESSING", 40, nil, nil, "user-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM bulletin_jobs WHERE status = ANY($1) ORDER BY created_at ASC LIMIT $2")).
		WithArgs(sqlmock.AnyArg(), 20).
		WillReturnRows(rows)

	jobs, err := NewBulletinJobRepository(db).ListByStatus(context.Background(), []models.BulletinJobStatus{models.BulletinJobQueued, models.BulletinJobProcessing}, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.BulletinJobProcessing, jobs[0].Status)
	assert.Empty(t, jobs[0].Summary.Succeeded)
}

func TestBulletinJobRepositoryListFinishedBeforeAndClear(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()
	repo := NewBulletinJobRepository(db)

	cutoff := time.Now().Add(-72 * time.Hour)
	rows := sqlmock.NewRows(bulletinJobRowColumns).
		AddRow("job-1", "class-1", "term-1", `{}`, "FINISHED", 100, "/x", `{}`, "user-1", time.Now(), cutoff.Add(-time.Hour), nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1")).
		WithArgs(cutoff, 50).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE bulletin_jobs SET result_url = NULL WHERE id = $1")).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	jobs, err := repo.ListFinishedBefore(context.Background(), cutoff, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, repo.ClearResult(context.Background(), "job-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
