package models

// SubjectAverage is the per-student, per-subject aggregate.
type SubjectAverage struct {
	Subject     string       `json:"subject"`
	Average     float64      `json:"average"`
	Coefficient float64      `json:"coefficient"`
	Entries     []GradeEntry `json:"entries,omitempty"`
}

// StudentAverageResult is the weighted general average and its totals.
type StudentAverageResult struct {
	GeneralAverage      float64 `json:"general_average"`
	TotalWeightedPoints float64 `json:"total_weighted_points"`
	TotalCoefficient    float64 `json:"total_coefficient"`
}

// StudentResult groups one student's subject averages with the general average.
type StudentResult struct {
	StudentID string           `json:"student_id"`
	Subjects  []SubjectAverage `json:"subjects"`
	StudentAverageResult
}

// ClassSubjectStatistics summarises one subject across a class for a period.
type ClassSubjectStatistics struct {
	Subject string  `json:"subject"`
	Mean    float64 `json:"mean"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Count   int     `json:"count"`
}

// StudentRank is the position of a student within a class for a period.
type StudentRank struct {
	StudentID      string  `json:"student_id"`
	Rank           int     `json:"rank"`
	GeneralAverage float64 `json:"general_average"`
}

// RankStrategy selects how ties are ranked.
type RankStrategy string

const (
	// RankSequential assigns distinct consecutive ranks, ties keep roster order.
	RankSequential RankStrategy = "sequential"
	// RankCompetition shares the rank on ties and skips the following positions (1, 2, 2, 4).
	RankCompetition RankStrategy = "competition"
)

// Valid reports whether the strategy is supported.
func (s RankStrategy) Valid() bool {
	return s == RankSequential || s == RankCompetition
}

// CoefficientPolicy selects where a subject's weight comes from.
type CoefficientPolicy string

const (
	// CoefficientFirstEntry uses the coefficient of the first entry seen for the subject.
	CoefficientFirstEntry CoefficientPolicy = "first_entry"
	// CoefficientTable uses a configured per-subject table, falling back to the first entry.
	CoefficientTable CoefficientPolicy = "table"
)

// ClassResults holds every per-student result of a class plus the derived ranking and statistics.
type ClassResults struct {
	ClassID    string                   `json:"class_id"`
	TermID     string                   `json:"term_id,omitempty"`
	Strategy   RankStrategy             `json:"strategy"`
	ClassSize  int                      `json:"class_size"`
	Students   []StudentResult          `json:"students"`
	Ranks      map[string]StudentRank   `json:"ranks"`
	Statistics []ClassSubjectStatistics `json:"statistics"`
}

// StatisticsFor returns the class statistics of a subject.
func (r *ClassResults) StatisticsFor(subject string) (ClassSubjectStatistics, bool) {
	if r == nil {
		return ClassSubjectStatistics{}, false
	}
	for _, stat := range r.Statistics {
		if stat.Subject == subject {
			return stat, true
		}
	}
	return ClassSubjectStatistics{}, false
}

// Student returns the result of the given student.
func (r *ClassResults) Student(studentID string) (StudentResult, bool) {
	if r == nil {
		return StudentResult{}, false
	}
	for _, res := range r.Students {
		if res.StudentID == studentID {
			return res, true
		}
	}
	return StudentResult{}, false
}

// ReportCardRow is one subject line of a bulletin.
type ReportCardRow struct {
	Subject       string   `json:"subject"`
	Teacher       string   `json:"teacher,omitempty"`
	Coefficient   float64  `json:"coefficient"`
	Average       float64  `json:"average"`
	WeightedTotal float64  `json:"weighted_total"`
	ClassMin      *float64 `json:"class_min,omitempty"`
	ClassMax      *float64 `json:"class_max,omitempty"`
	ClassMean     *float64 `json:"class_mean,omitempty"`
	Remark        string   `json:"remark,omitempty"`
}

// ReportCardDocument is the composed, renderable bulletin. It is not mutated after composition.
type ReportCardDocument struct {
	StudentID           string          `json:"student_id"`
	StudentName         string          `json:"student_name"`
	Matriculation       string          `json:"matriculation"`
	ClassName           string          `json:"class_name"`
	SchoolYear          string          `json:"school_year"`
	TermLabel           string          `json:"term_label"`
	Rows                []ReportCardRow `json:"rows"`
	GeneralAverage      float64         `json:"general_average"`
	TotalWeightedPoints float64         `json:"total_weighted_points"`
	TotalCoefficient    float64         `json:"total_coefficient"`
	Rank                *int            `json:"rank,omitempty"`
	ClassSize           *int            `json:"class_size,omitempty"`
	Mention             string          `json:"mention"`
	CouncilComment      string          `json:"council_comment,omitempty"`
}
