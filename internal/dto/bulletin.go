package dto

import (
	"time"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

// BulletinQuery captures the period selection of GET /bulletins/students/:id.
// From and To narrow or replace the term dates (YYYY-MM-DD, inclusive).
type BulletinQuery struct {
	TermID   string `form:"termId"`
	ClassID  string `form:"classId"`
	From     string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To       string `form:"to" validate:"omitempty,datetime=2006-01-02"`
	Strategy string `form:"strategy" validate:"omitempty,oneof=sequential competition"`
}

// RenderBulletinRequest captures POST /bulletins/students/:id/render payload.
type RenderBulletinRequest struct {
	TermID         string            `json:"termId"`
	ClassID        string            `json:"classId"`
	From           string            `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To             string            `json:"to" validate:"omitempty,datetime=2006-01-02"`
	Strategy       string            `json:"strategy" validate:"omitempty,oneof=sequential competition"`
	TermLabel      string            `json:"termLabel" validate:"max=80"`
	CouncilComment string            `json:"councilComment" validate:"max=1000"`
	Remarks        map[string]string `json:"remarks" validate:"omitempty,dive,max=200"`
}

// ClassResultsQuery captures GET /bulletins/classes/:id/results parameters.
type ClassResultsQuery struct {
	TermID   string `form:"termId"`
	From     string `form:"from" validate:"omitempty,datetime=2006-01-02"`
	To       string `form:"to" validate:"omitempty,datetime=2006-01-02"`
	Strategy string `form:"strategy" validate:"omitempty,oneof=sequential competition"`
}

// ClassSheetQuery captures GET /bulletins/classes/:id/sheet parameters.
type ClassSheetQuery struct {
	ClassResultsQuery
	Format string `form:"format" validate:"required,oneof=csv xlsx pdf"`
}

// ClassStudentResult is one ranked line of the class results listing.
type ClassStudentResult struct {
	StudentID           string                  `json:"student_id"`
	FullName            string                  `json:"full_name"`
	NIS                 string                  `json:"nis"`
	Rank                int                     `json:"rank"`
	GeneralAverage      float64                 `json:"general_average"`
	TotalWeightedPoints float64                 `json:"total_weighted_points"`
	TotalCoefficient    float64                 `json:"total_coefficient"`
	Mention             string                  `json:"mention"`
	Subjects            []models.SubjectAverage `json:"subjects"`
}

// ClassResultsResponse lists a class in rank order with its per-subject statistics.
type ClassResultsResponse struct {
	ClassID    string                          `json:"class_id"`
	TermID     string                          `json:"term_id"`
	TermLabel  string                          `json:"term_label"`
	Strategy   models.RankStrategy             `json:"strategy"`
	ClassSize  int                             `json:"class_size"`
	Students   []ClassStudentResult            `json:"students"`
	Statistics []models.ClassSubjectStatistics `json:"statistics"`
}

// BulletinJobRequest captures POST /bulletins/jobs payload.
type BulletinJobRequest struct {
	ClassID         string            `json:"classId" validate:"required"`
	TermID          string            `json:"termId"`
	Order           string            `json:"order" validate:"omitempty,oneof=roster rank"`
	Strategy        string            `json:"strategy" validate:"omitempty,oneof=sequential competition"`
	CouncilComments map[string]string `json:"councilComments" validate:"omitempty,dive,max=1000"`
}

// BulletinJobResponse is returned after enqueueing a bulk generation.
type BulletinJobResponse struct {
	ID       string                   `json:"id"`
	Status   models.BulletinJobStatus `json:"status"`
	Progress int                      `json:"progress"`
}

// BulletinJobStatusResponse exposes job progress and per-student outcomes.
type BulletinJobStatusResponse struct {
	ID         string                    `json:"id"`
	ClassID    string                    `json:"classId"`
	TermID     string                    `json:"termId"`
	Status     models.BulletinJobStatus  `json:"status"`
	Progress   int                       `json:"progress"`
	ResultURL  *string                   `json:"resultUrl,omitempty"`
	Summary    models.BulletinJobSummary `json:"summary"`
	Error      *string                   `json:"error,omitempty"`
	CreatedAt  time.Time                 `json:"createdAt"`
	FinishedAt *time.Time                `json:"finishedAt,omitempty"`
}
