package grading

import "github.com/noah-isme/sma-bulletin-api/internal/models"

// GeneralAverage combines subject averages into the weighted general average.
// The average is computed from the rounded point total so the printed
// "points / coefficients" line matches it. A student without weighted subjects gets 0.
func GeneralAverage(subjects []models.SubjectAverage) models.StudentAverageResult {
	var points, coefficients float64
	for _, subject := range subjects {
		points += subject.Average * subject.Coefficient
		coefficients += subject.Coefficient
	}
	result := models.StudentAverageResult{
		TotalWeightedPoints: Round2(points),
		TotalCoefficient:    coefficients,
	}
	if coefficients > 0 {
		result.GeneralAverage = Round2(result.TotalWeightedPoints / coefficients)
	}
	return result
}

// EvaluateStudent runs the per-student path: window filter, subject aggregation, general average.
func EvaluateStudent(studentID string, entries []models.GradeEntry, window models.DateWindow, source CoefficientSource) models.StudentResult {
	subjects := AggregateSubjects(FilterWindow(entries, window), source)
	return models.StudentResult{
		StudentID:            studentID,
		Subjects:             subjects,
		StudentAverageResult: GeneralAverage(subjects),
	}
}
