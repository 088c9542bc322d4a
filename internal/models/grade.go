package models

import "time"

// AssessmentKind enumerates the closed set of recorded assessments.
type AssessmentKind string

const (
	AssessmentQuiz         AssessmentKind = "QUIZ"
	AssessmentHomework     AssessmentKind = "HOMEWORK"
	AssessmentMonthlyExam  AssessmentKind = "MONTHLY_EXAM"
	AssessmentNationalExam AssessmentKind = "NATIONAL_EXAM"
	AssessmentZoneExam     AssessmentKind = "ZONE_EXAM"
)

// GradeEntry is one recorded assessment result on the 0-20 scale.
// Scores and coefficients are stored as entered; range checks belong to the grading workflow.
type GradeEntry struct {
	ID          string         `db:"id" json:"id"`
	StudentID   string         `db:"student_id" json:"student_id"`
	Subject     string         `db:"subject" json:"subject"`
	Kind        AssessmentKind `db:"kind" json:"kind"`
	Date        time.Time      `db:"assessed_on" json:"date"`
	Score       float64        `db:"score" json:"score"`
	Coefficient float64        `db:"coefficient" json:"coefficient"`
}

// DateWindow bounds ledger reads. Nil bounds are open; both bounds are inclusive on the calendar date.
type DateWindow struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// IsZero reports whether the window is unbounded ("all time").
func (w DateWindow) IsZero() bool {
	return w.Start == nil && w.End == nil
}

// Contains reports whether t falls inside the window, comparing calendar dates only.
func (w DateWindow) Contains(t time.Time) bool {
	day := truncateDay(t)
	if w.Start != nil && day.Before(truncateDay(*w.Start)) {
		return false
	}
	if w.End != nil && day.After(truncateDay(*w.End)) {
		return false
	}
	return true
}

// Key renders a stable cache key fragment for the window.
func (w DateWindow) Key() string {
	start, end := "*", "*"
	if w.Start != nil {
		start = w.Start.Format("2006-01-02")
	}
	if w.End != nil {
		end = w.End.Format("2006-01-02")
	}
	return start + ".." + end
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
