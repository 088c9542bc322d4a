package grading

import (
	"sort"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

// ComposeInput carries everything a bulletin is built from. Class is optional; when present the
// document gets the student's rank, the class size and the per-subject class statistics.
type ComposeInput struct {
	Student        models.RosterStudent
	SchoolYear     string
	TermLabel      string
	Result         models.StudentResult
	Class          *models.ClassResults
	Teachers       map[string]string
	Remarks        map[string]string
	CouncilComment string
}

// Compose builds the bulletin document. Subject rows are listed by descending average;
// subjects with equal averages keep their aggregation order.
func Compose(in ComposeInput) models.ReportCardDocument {
	rows := make([]models.ReportCardRow, 0, len(in.Result.Subjects))
	for _, subject := range in.Result.Subjects {
		row := models.ReportCardRow{
			Subject:       subject.Subject,
			Teacher:       in.Teachers[subject.Subject],
			Coefficient:   subject.Coefficient,
			Average:       subject.Average,
			WeightedTotal: Round2(subject.Average * subject.Coefficient),
			Remark:        in.Remarks[subject.Subject],
		}
		if stat, ok := in.Class.StatisticsFor(subject.Subject); ok {
			row.ClassMin = floatPtr(stat.Min)
			row.ClassMax = floatPtr(stat.Max)
			row.ClassMean = floatPtr(stat.Mean)
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Average > rows[j].Average })

	doc := models.ReportCardDocument{
		StudentID:           in.Student.StudentID,
		StudentName:         in.Student.FullName,
		Matriculation:       in.Student.NIS,
		ClassName:           in.Student.ClassName,
		SchoolYear:          in.SchoolYear,
		TermLabel:           in.TermLabel,
		Rows:                rows,
		GeneralAverage:      in.Result.GeneralAverage,
		TotalWeightedPoints: in.Result.TotalWeightedPoints,
		TotalCoefficient:    in.Result.TotalCoefficient,
		Mention:             MentionFor(in.Result.GeneralAverage),
		CouncilComment:      in.CouncilComment,
	}
	if in.Class != nil {
		if rank, ok := in.Class.Ranks[in.Result.StudentID]; ok {
			doc.Rank = intPtr(rank.Rank)
			doc.ClassSize = intPtr(in.Class.ClassSize)
		}
	}
	return doc
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
