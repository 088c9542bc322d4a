package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-bulletin-api/internal/dto"
	"github.com/noah-isme/sma-bulletin-api/internal/models"
	"github.com/noah-isme/sma-bulletin-api/internal/repository"
	appErrors "github.com/noah-isme/sma-bulletin-api/pkg/errors"
	"github.com/noah-isme/sma-bulletin-api/pkg/export"
	"github.com/noah-isme/sma-bulletin-api/pkg/jobs"
	"github.com/noah-isme/sma-bulletin-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-bulletin-api/pkg/storage"
)

const cleanupBatch = 100

type bulletinJobStore interface {
	Create(ctx context.Context, job *models.BulletinJob) error
	GetByID(ctx context.Context, id string) (*models.BulletinJob, error)
	Update(ctx context.Context, id string, params repository.UpdateBulletinJobParams) error
	ListByStatus(ctx context.Context, statuses []models.BulletinJobStatus, limit int) ([]models.BulletinJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.BulletinJob, error)
	ClearResult(ctx context.Context, id string) error
}

type classBulletinSource interface {
	ResolveTerm(ctx context.Context, termID string) (*models.Term, error)
	AuthorizeClass(ctx context.Context, classID, actorID string, role models.UserRole) error
	PrepareClass(ctx context.Context, classID, termID string, strategy models.RankStrategy) (*ClassBulletins, error)
}

type bulletinExporter interface {
	Store(jobID, filename string, write func(io.Writer) error) (*ExportResult, error)
	Resolve(token string) (*storage.DownloadClaims, error)
	LocateExpired(token string) (string, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	Cleanup(ttl time.Duration) ([]string, error)
}

type bulletinEnqueuer interface {
	Enqueue(job jobs.Job[BulletinTask]) error
}

// BulletinTask is the queue payload of a class bulletin job.
type BulletinTask struct {
	ClassID string
	TermID  string
}

// BulletinJobConfig tunes bulk generation lifecycle.
type BulletinJobConfig struct {
	Enabled         bool
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// BulletinDownload is an opened bulk bulletin file.
type BulletinDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	Size        int64
	ExpiresAt   time.Time
}

// BulletinJobService manages class-wide bulletin jobs: creation, status, download and cleanup.
type BulletinJobService struct {
	repo      bulletinJobStore
	bulletins classBulletinSource
	exporter  bulletinExporter
	queue     bulletinEnqueuer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       BulletinJobConfig
}

// NewBulletinJobService constructs the service.
func NewBulletinJobService(repo bulletinJobStore, bulletins classBulletinSource, exporter bulletinExporter, queue bulletinEnqueuer, validate *validator.Validate, logger *zap.Logger, cfg BulletinJobConfig) *BulletinJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &BulletinJobService{
		repo:      repo,
		bulletins: bulletins,
		exporter:  exporter,
		queue:     queue,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateJob validates the request, persists the job and enqueues it.
func (s *BulletinJobService) CreateJob(ctx context.Context, req dto.BulletinJobRequest, actorID string, role models.UserRole) (*dto.BulletinJobResponse, error) {
	if !s.cfg.Enabled || s.queue == nil {
		return nil, appErrors.ErrJobsDisabled
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if err := s.bulletins.AuthorizeClass(ctx, req.ClassID, actorID, role); err != nil {
		return nil, err
	}
	term, err := s.bulletins.ResolveTerm(ctx, req.TermID)
	if err != nil {
		return nil, err
	}
	order := models.BulletinOrder(req.Order)
	if order == "" {
		order = models.BulletinOrderRoster
	}
	job := &models.BulletinJob{
		ClassID: req.ClassID,
		TermID:  term.ID,
		Params: models.BulletinJobParams{
			Order:           order,
			Strategy:        models.RankStrategy(req.Strategy),
			CouncilComments: req.CouncilComments,
		},
		Status:    models.BulletinJobQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create bulletin job")
	}
	if err := s.queue.Enqueue(jobs.Job[BulletinTask]{ID: job.ID, Payload: BulletinTask{ClassID: job.ClassID, TermID: job.TermID}}); err != nil {
		failed := models.BulletinJobFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateBulletinJobParams{
			Status:       &failed,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue bulletin job")
	}
	s.logger.Info("bulletin job queued",
		zap.String("job_id", job.ID),
		zap.String("class_id", job.ClassID),
		zap.String("term_id", job.TermID),
		zap.String("request_id", requestid.FromContext(ctx)),
	)
	return &dto.BulletinJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata, restricting teachers to their own jobs.
func (s *BulletinJobService) GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.BulletinJobStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == models.RoleTeacher && job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.BulletinJobStatusResponse{
		ID:         job.ID,
		ClassID:    job.ClassID,
		TermID:     job.TermID,
		Status:     job.Status,
		Progress:   job.Progress,
		ResultURL:  job.ResultURL,
		Summary:    job.Summary,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates a signed token and opens the stored bulk bulletin.
func (s *BulletinJobService) ResolveDownload(ctx context.Context, token string) (*BulletinDownload, error) {
	claims, err := s.exporter.Resolve(token)
	if err != nil {
		return nil, err
	}
	job, err := s.load(ctx, claims.JobID)
	if err != nil {
		return nil, err
	}
	if job.ResultURL == nil || TokenFromURL(*job.ResultURL) != token {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.BulletinJobFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "bulletins not ready")
	}
	file, err := s.exporter.Open(claims.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrTokenExpired, "bulletins are no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open bulletins")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat bulletins")
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return &BulletinDownload{
		File:        file,
		Filename:    path.Base(claims.Path),
		ContentType: export.FormatPDF.ContentType(),
		Size:        info.Size(),
		ExpiresAt:   expiresAt,
	}, nil
}

// RecoverPendingJobs replays unfinished jobs after a restart.
func (s *BulletinJobService) RecoverPendingJobs(ctx context.Context) {
	if s.queue == nil {
		return
	}
	pending, err := s.repo.ListByStatus(ctx, []models.BulletinJobStatus{models.BulletinJobQueued, models.BulletinJobProcessing}, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover bulletin jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job[BulletinTask]{ID: job.ID, Payload: BulletinTask{ClassID: job.ClassID, TermID: job.TermID}}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue bulletin job", "job_id", job.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired bulk bulletins periodically.
func (s *BulletinJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired deletes the files of jobs finished before the result TTL and drops their links.
func (s *BulletinJobService) CleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, cleanupBatch)
		if err != nil {
			s.logger.Sugar().Warnw("cleanup list failed", "error", err)
			return
		}
		for _, job := range expired {
			if job.ResultURL != nil {
				if relPath, err := s.exporter.LocateExpired(TokenFromURL(*job.ResultURL)); err == nil {
					if err := s.exporter.Delete(relPath); err != nil {
						s.logger.Sugar().Warnw("cleanup delete failed", "job_id", job.ID, "error", err)
					}
				}
			}
			if err := s.repo.ClearResult(ctx, job.ID); err != nil {
				s.logger.Sugar().Warnw("cleanup clear failed", "job_id", job.ID, "error", err)
				return
			}
		}
		if len(expired) < cleanupBatch {
			break
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
}

func (s *BulletinJobService) load(ctx context.Context, id string) (*models.BulletinJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bulletin job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bulletin job")
	}
	return job, nil
}

// BulletinWorker turns queued jobs into a single multi-student bulletin PDF.
type BulletinWorker struct {
	repo           bulletinJobStore
	bulletins      classBulletinSource
	renderer       bulletinRenderer
	exporter       bulletinExporter
	metrics        *MetricsService
	logger         *zap.Logger
	studentWorkers int
}

// NewBulletinWorker constructs a worker.
func NewBulletinWorker(repo bulletinJobStore, bulletins classBulletinSource, renderer bulletinRenderer, exporter bulletinExporter, metrics *MetricsService, studentWorkers int, logger *zap.Logger) *BulletinWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if studentWorkers <= 0 {
		studentWorkers = 4
	}
	return &BulletinWorker{
		repo:           repo,
		bulletins:      bulletins,
		renderer:       renderer,
		exporter:       exporter,
		metrics:        metrics,
		logger:         logger,
		studentWorkers: studentWorkers,
	}
}

type studentOutcome struct {
	studentID string
	doc       models.ReportCardDocument
	err       error
}

// Handle processes a queue job. Errors before any bulletin is stored are returned for retry;
// per-student failures are recorded in the job summary.
func (w *BulletinWorker) Handle(ctx context.Context, job jobs.Job[BulletinTask]) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status == models.BulletinJobFinished || record.Status == models.BulletinJobFailed {
		return nil
	}
	w.setProgress(ctx, record.ID, models.BulletinJobProcessing, 10)

	class, err := w.bulletins.PrepareClass(ctx, record.ClassID, record.TermID, record.Params.Strategy)
	if err != nil {
		w.requeue(ctx, record.ID, err)
		return err
	}
	w.setProgress(ctx, record.ID, models.BulletinJobProcessing, 30)

	students := class.Ordered(record.Params.Order)
	outcomes := w.composeAll(class, students, record.Params.CouncilComments)
	docs := make([]models.ReportCardDocument, 0, len(outcomes))
	composed := make([]string, 0, len(outcomes))
	failures := map[string]error{}
	for _, out := range outcomes {
		if out.err != nil {
			failures[out.studentID] = out.err
			continue
		}
		composed = append(composed, out.studentID)
		docs = append(docs, out.doc)
	}
	if len(students) == 0 {
		w.finish(ctx, record.ID, models.BulletinJobFailed, nil, w.summarize(record.ID, outcomes, failures), "class has no active students")
		return nil
	}
	w.setProgress(ctx, record.ID, models.BulletinJobProcessing, 70)

	className := record.ClassID
	if students[0].ClassName != "" {
		className = students[0].ClassName
	}
	start := time.Now()
	rendered := 0
	result, err := w.exporter.Store(record.ID, export.DocumentFilename("Bulletins", className, class.Term.Name, "pdf"), func(out io.Writer) error {
		if len(docs) == 0 {
			return export.ErrNoDocuments
		}
		skipped, err := w.renderer.RenderBulk(out, docs)
		for i, cause := range skipped {
			failures[composed[i]] = cause
		}
		rendered = len(docs) - len(skipped)
		return err
	})
	if errors.Is(err, export.ErrNoDocuments) {
		w.finish(ctx, record.ID, models.BulletinJobFailed, nil, w.summarize(record.ID, outcomes, failures), "no bulletin could be produced")
		return nil
	}
	if err != nil {
		w.requeue(ctx, record.ID, err)
		return err
	}
	w.metrics.ObserveRender("bulk", rendered, time.Since(start))
	w.finish(ctx, record.ID, models.BulletinJobFinished, &result.URL, w.summarize(record.ID, outcomes, failures), "")
	return nil
}

// summarize splits the students into succeeded and failed, keeping the bulletin order.
func (w *BulletinWorker) summarize(jobID string, outcomes []studentOutcome, failures map[string]error) models.BulletinJobSummary {
	summary := models.BulletinJobSummary{Succeeded: []string{}, Failed: []models.BulletinFailure{}}
	for _, out := range outcomes {
		if cause, failed := failures[out.studentID]; failed {
			summary.Failed = append(summary.Failed, models.BulletinFailure{StudentID: out.studentID, Reason: cause.Error()})
			w.logger.Sugar().Warnw("bulletin skipped", "job_id", jobID, "student_id", out.studentID, "error", cause)
			continue
		}
		summary.Succeeded = append(summary.Succeeded, out.studentID)
	}
	return summary
}

// GiveUp marks a job failed once the queue stopped retrying it.
func (w *BulletinWorker) GiveUp(job jobs.Job[BulletinTask], cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	failed := models.BulletinJobFailed
	progress := 100
	msg := cause.Error()
	now := time.Now().UTC()
	if err := w.repo.Update(ctx, job.ID, repository.UpdateBulletinJobParams{
		Status:       &failed,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", err)
	}
	w.metrics.RecordJob(failed)
}

// composeAll builds every student's bulletin in parallel. Output keeps the input order.
func (w *BulletinWorker) composeAll(class *ClassBulletins, students []models.RosterStudent, comments map[string]string) []studentOutcome {
	mapper := iter.Mapper[models.RosterStudent, studentOutcome]{MaxGoroutines: w.studentWorkers}
	return mapper.Map(students, func(student *models.RosterStudent) studentOutcome {
		return w.composeOne(class, *student, comments[student.StudentID])
	})
}

func (w *BulletinWorker) composeOne(class *ClassBulletins, student models.RosterStudent, comment string) (out studentOutcome) {
	out.studentID = student.StudentID
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("bulletin panicked: %v", r)
		}
	}()
	out.doc, out.err = class.Compose(student, comment)
	return out
}

func (w *BulletinWorker) setProgress(ctx context.Context, id string, status models.BulletinJobStatus, progress int) {
	if err := w.repo.Update(ctx, id, repository.UpdateBulletinJobParams{Status: &status, Progress: &progress}); err != nil {
		w.logger.Sugar().Warnw("failed to update job progress", "job_id", id, "error", err)
	}
}

func (w *BulletinWorker) requeue(ctx context.Context, id string, cause error) {
	queued := models.BulletinJobQueued
	reset := 0
	msg := cause.Error()
	if err := w.repo.Update(ctx, id, repository.UpdateBulletinJobParams{
		Status:       &queued,
		Progress:     &reset,
		ErrorMessage: &msg,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job queued", "job_id", id, "error", err)
	}
}

func (w *BulletinWorker) finish(ctx context.Context, id string, status models.BulletinJobStatus, resultURL *string, summary models.BulletinJobSummary, message string) {
	progress := 100
	now := time.Now().UTC()
	if err := w.repo.Update(ctx, id, repository.UpdateBulletinJobParams{
		Status:       &status,
		Progress:     &progress,
		ResultURL:    resultURL,
		Summary:      &summary,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to finish job", "job_id", id, "error", err)
	}
	w.metrics.RecordJob(status)
}
