package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bulletin-api/internal/dto"
	"github.com/noah-isme/sma-bulletin-api/internal/models"
	"github.com/noah-isme/sma-bulletin-api/internal/repository"
	appErrors "github.com/noah-isme/sma-bulletin-api/pkg/errors"
	"github.com/noah-isme/sma-bulletin-api/pkg/jobs"
)

type bulletinJobRepoStub struct {
	mu   sync.Mutex
	jobs map[string]*models.BulletinJob
}

func newBulletinJobRepoStub() *bulletinJobRepoStub {
	return &bulletinJobRepoStub{jobs: map[string]*models.BulletinJob{}}
}

func (r *bulletinJobRepoStub) Create(ctx context.Context, job *models.BulletinJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *bulletinJobRepoStub) GetByID(ctx context.Context, id string) (*models.BulletinJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("get bulletin job: %w", sql.ErrNoRows)
	}
	copied := *job
	return &copied, nil
}

func (r *bulletinJobRepoStub) Update(ctx context.Context, id string, params repository.UpdateBulletinJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		url := *params.ResultURL
		job.ResultURL = &url
	}
	if params.Summary != nil {
		job.Summary = *params.Summary
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		job.ErrorMessage = &msg
	}
	if params.FinishedAt != nil {
		finished := *params.FinishedAt
		job.FinishedAt = &finished
	}
	return nil
}

func (r *bulletinJobRepoStub) ListByStatus(ctx context.Context, statuses []models.BulletinJobStatus, limit int) ([]models.BulletinJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BulletinJob
	for _, job := range r.jobs {
		for _, status := range statuses {
			if job.Status == status {
				out = append(out, *job)
			}
		}
	}
	return out, nil
}

func (r *bulletinJobRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.BulletinJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BulletinJob
	for _, job := range r.jobs {
		if job.Status == models.BulletinJobFinished && job.ResultURL != nil && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *bulletinJobRepoStub) ClearResult(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		job.ResultURL = nil
	}
	return nil
}

func (r *bulletinJobRepoStub) get(id string) models.BulletinJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.jobs[id]
}

type bulletinQueueStub struct {
	jobs []jobs.Job[BulletinTask]
	err  error
}

func (q *bulletinQueueStub) Enqueue(job jobs.Job[BulletinTask]) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type jobFixture struct {
	*bulletinFixture
	repo   *bulletinJobRepoStub
	queue  *bulletinQueueStub
	jobs   *BulletinJobService
	worker *BulletinWorker
	export *ExportService
	dir    string
}

func newJobFixture(t *testing.T, enabled bool) *jobFixture {
	t.Helper()
	f := newBulletinFixture(t, BulletinServiceConfig{}, nil)
	exportSvc, dir := newExportServiceForTest(t)
	repo := newBulletinJobRepoStub()
	queue := &bulletinQueueStub{}
	return &jobFixture{
		bulletinFixture: f,
		repo:            repo,
		queue:           queue,
		jobs: NewBulletinJobService(repo, f.svc, exportSvc, queue, nil, zap.NewNop(), BulletinJobConfig{
			Enabled:         enabled,
			ResultTTL:       time.Hour,
			CleanupInterval: time.Hour,
		}),
		worker: NewBulletinWorker(repo, f.svc, f.renderer, exportSvc, NewMetricsService(), 2, zap.NewNop()),
		export: exportSvc,
		dir:    dir,
	}
}

func (f *jobFixture) createAndRun(t *testing.T, req dto.BulletinJobRequest) models.BulletinJob {
	t.Helper()
	resp, err := f.jobs.CreateJob(context.Background(), req, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, f.queue.jobs)
	job := f.queue.jobs[len(f.queue.jobs)-1]
	require.Equal(t, resp.ID, job.ID)
	require.NoError(t, f.worker.Handle(context.Background(), job))
	return f.repo.get(resp.ID)
}

func TestBulletinJobServiceCreateJob(t *testing.T) {
	f := newJobFixture(t, true)

	resp, err := f.jobs.CreateJob(context.Background(), dto.BulletinJobRequest{
		ClassID:         "C1",
		Order:           "rank",
		CouncilComments: map[string]string{"s1": "Bon trimestre"},
	}, "teacher-1", models.RoleTeacher)
	require.NoError(t, err)

	assert.Equal(t, models.BulletinJobQueued, resp.Status)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, BulletinTask{ClassID: "C1", TermID: "T1"}, f.queue.jobs[0].Payload)

	stored := f.repo.get(resp.ID)
	assert.Equal(t, "T1", stored.TermID)
	assert.Equal(t, "teacher-1", stored.CreatedBy)
	assert.Equal(t, models.BulletinOrderRank, stored.Params.Order)
	assert.Equal(t, "Bon trimestre", stored.Params.CouncilComments["s1"])
}

func TestBulletinJobServiceCreateJobRejected(t *testing.T) {
	ctx := context.Background()

	disabled := newJobFixture(t, false)
	_, err := disabled.jobs.CreateJob(ctx, dto.BulletinJobRequest{ClassID: "C1"}, "admin-1", models.RoleAdmin)
	assert.Equal(t, appErrors.ErrJobsDisabled.Code, errorCode(t, err))

	f := newJobFixture(t, true)
	_, err = f.jobs.CreateJob(ctx, dto.BulletinJobRequest{}, "admin-1", models.RoleAdmin)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	_, err = f.jobs.CreateJob(ctx, dto.BulletinJobRequest{ClassID: "C1", Order: "alphabetical"}, "admin-1", models.RoleAdmin)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	_, err = f.jobs.CreateJob(ctx, dto.BulletinJobRequest{ClassID: "C1"}, "teacher-2", models.RoleTeacher)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	_, err = f.jobs.CreateJob(ctx, dto.BulletinJobRequest{ClassID: "C1", TermID: "T9"}, "admin-1", models.RoleAdmin)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
	assert.Empty(t, f.queue.jobs)
}

func TestBulletinJobServiceCreateJobEnqueueFailure(t *testing.T) {
	f := newJobFixture(t, true)
	f.queue.err = jobs.ErrQueueClosed

	_, err := f.jobs.CreateJob(context.Background(), dto.BulletinJobRequest{ClassID: "C1"}, "admin-1", models.RoleAdmin)
	assert.Equal(t, appErrors.ErrInternal.Code, errorCode(t, err))

	require.Len(t, f.repo.jobs, 1)
	for _, job := range f.repo.jobs {
		assert.Equal(t, models.BulletinJobFailed, job.Status)
		assert.NotNil(t, job.FinishedAt)
	}
}

func TestBulletinWorkerIsolatesFailingStudent(t *testing.T) {
	f := newJobFixture(t, true)
	f.renderer.failFor = map[string]bool{"s3": true}

	job := f.createAndRun(t, dto.BulletinJobRequest{ClassID: "C1"})

	assert.Equal(t, models.BulletinJobFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)
	assert.Contains(t, *job.ResultURL, "/api/v1/bulletins/download/")
	assert.Equal(t, []string{"s1", "s2"}, job.Summary.Succeeded)
	require.Len(t, job.Summary.Failed, 1)
	assert.Equal(t, "s3", job.Summary.Failed[0].StudentID)
	assert.Contains(t, job.Summary.Failed[0].Reason, "image decode failed")
	require.Len(t, f.renderer.bulk, 1)
	assert.Equal(t, []string{"s1", "s2"}, f.renderer.bulk[0])
	// bulk jobs draw each bulletin once, inside the combined document
	assert.Empty(t, f.renderer.docs)
}

func TestBulletinWorkerRecoversPanickingStudent(t *testing.T) {
	f := newJobFixture(t, true)
	f.renderer.panicOn = map[string]bool{"s1": true}

	job := f.createAndRun(t, dto.BulletinJobRequest{ClassID: "C1", Order: "rank"})

	assert.Equal(t, models.BulletinJobFinished, job.Status)
	assert.Equal(t, []string{"s2", "s3"}, job.Summary.Succeeded)
	require.Len(t, job.Summary.Failed, 1)
	assert.Contains(t, job.Summary.Failed[0].Reason, "panicked")
	assert.Equal(t, []string{"s2", "s3"}, f.renderer.bulk[0])
}

func TestBulletinWorkerFailsWhenNothingRendered(t *testing.T) {
	f := newJobFixture(t, true)
	f.renderer.failFor = map[string]bool{"s1": true, "s2": true, "s3": true}

	job := f.createAndRun(t, dto.BulletinJobRequest{ClassID: "C1"})

	assert.Equal(t, models.BulletinJobFailed, job.Status)
	assert.Nil(t, job.ResultURL)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "no bulletin could be produced", *job.ErrorMessage)
	assert.Len(t, job.Summary.Failed, 3)
	assert.Empty(t, f.renderer.bulk)
}

func TestBulletinWorkerEmptyClass(t *testing.T) {
	f := newJobFixture(t, true)

	job := f.createAndRun(t, dto.BulletinJobRequest{ClassID: "C-empty"})
	assert.Equal(t, models.BulletinJobFailed, job.Status)
	assert.Equal(t, "class has no active students", *job.ErrorMessage)
}

func TestBulletinWorkerRetryableFailure(t *testing.T) {
	f := newJobFixture(t, true)
	resp, err := f.jobs.CreateJob(context.Background(), dto.BulletinJobRequest{ClassID: "C1"}, "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	f.ledger.err = errors.New("connection reset")

	err = f.worker.Handle(context.Background(), f.queue.jobs[0])
	require.Error(t, err)
	job := f.repo.get(resp.ID)
	assert.Equal(t, models.BulletinJobQueued, job.Status)
	assert.Contains(t, *job.ErrorMessage, "failed to load class grades")

	f.worker.GiveUp(f.queue.jobs[0], err)
	job = f.repo.get(resp.ID)
	assert.Equal(t, models.BulletinJobFailed, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.NotNil(t, job.FinishedAt)
}

func TestBulletinWorkerSkipsFinishedJob(t *testing.T) {
	f := newJobFixture(t, true)
	job := f.createAndRun(t, dto.BulletinJobRequest{ClassID: "C1"})

	require.NoError(t, f.worker.Handle(context.Background(), jobs.Job[BulletinTask]{ID: job.ID}))
	assert.Len(t, f.renderer.bulk, 1)
}

func TestBulletinJobServiceDownload(t *testing.T) {
	f := newJobFixture(t, true)
	job := f.createAndRun(t, dto.BulletinJobRequest{ClassID: "C1"})
	token := TokenFromURL(*job.ResultURL)

	download, err := f.jobs.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()

	assert.Equal(t, "Bulletins_6e_A_Trimestre_1.pdf", download.Filename)
	assert.Equal(t, "application/pdf", download.ContentType)
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-s1,s2,s3", string(body))
	assert.EqualValues(t, len(body), download.Size)
	assert.False(t, download.ExpiresAt.IsZero())
}

func TestBulletinJobServiceDownloadRejected(t *testing.T) {
	f := newJobFixture(t, true)
	ctx := context.Background()
	job := f.createAndRun(t, dto.BulletinJobRequest{ClassID: "C1"})

	_, err := f.jobs.ResolveDownload(ctx, "garbage")
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	// a valid signature for the same job that was never handed out
	other, err := f.export.Store(job.ID, "other.pdf", func(w io.Writer) error {
		_, err := io.WriteString(w, "%PDF")
		return err
	})
	require.NoError(t, err)
	_, err = f.jobs.ResolveDownload(ctx, other.Token)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	orphan, err := f.export.Store("missing-job", "x.pdf", func(w io.Writer) error { return nil })
	require.NoError(t, err)
	_, err = f.jobs.ResolveDownload(ctx, orphan.Token)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestBulletinJobServiceGetStatus(t *testing.T) {
	f := newJobFixture(t, true)
	ctx := context.Background()
	f.renderer.failFor = map[string]bool{"s2": true}
	job := f.createAndRun(t, dto.BulletinJobRequest{ClassID: "C1"})

	status, err := f.jobs.GetStatus(ctx, job.ID, "admin-2", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.BulletinJobFinished, status.Status)
	assert.Equal(t, "C1", status.ClassID)
	assert.Nil(t, status.Error)
	assert.Len(t, status.Summary.Failed, 1)

	_, err = f.jobs.GetStatus(ctx, job.ID, "teacher-1", models.RoleTeacher)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	_, err = f.jobs.GetStatus(ctx, "missing", "admin-1", models.RoleAdmin)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestBulletinJobServiceRecoverPendingJobs(t *testing.T) {
	f := newJobFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.repo.Create(ctx, &models.BulletinJob{ID: "queued", ClassID: "C1", TermID: "T1", Status: models.BulletinJobQueued}))
	require.NoError(t, f.repo.Create(ctx, &models.BulletinJob{ID: "running", ClassID: "C1", TermID: "T1", Status: models.BulletinJobProcessing}))
	require.NoError(t, f.repo.Create(ctx, &models.BulletinJob{ID: "done", ClassID: "C1", TermID: "T1", Status: models.BulletinJobFinished}))

	f.jobs.RecoverPendingJobs(ctx)

	ids := map[string]bool{}
	for _, job := range f.queue.jobs {
		ids[job.ID] = true
	}
	assert.Equal(t, map[string]bool{"queued": true, "running": true}, ids)
}

func TestBulletinJobServiceCleanupExpired(t *testing.T) {
	f := newJobFixture(t, true)
	ctx := context.Background()
	job := f.createAndRun(t, dto.BulletinJobRequest{ClassID: "C1"})
	token := TokenFromURL(*job.ResultURL)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.repo.Update(ctx, job.ID, repository.UpdateBulletinJobParams{FinishedAt: &old}))

	f.jobs.CleanupExpired(ctx)

	assert.Nil(t, f.repo.get(job.ID).ResultURL)
	path, err := f.export.LocateExpired(token)
	require.NoError(t, err)
	_, err = f.export.Open(path)
	assert.Error(t, err)
}
