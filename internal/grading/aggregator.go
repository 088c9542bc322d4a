package grading

import "github.com/noah-isme/sma-bulletin-api/internal/models"

// CoefficientSource decides the weight of a subject from its grouped entries.
type CoefficientSource interface {
	Coefficient(subject string, group []models.GradeEntry) float64
}

// FirstEntryCoefficients weights a subject with the coefficient of its first entry.
// The result depends on ledger order; TableCoefficients removes that dependency.
type FirstEntryCoefficients struct{}

// Coefficient implements CoefficientSource.
func (FirstEntryCoefficients) Coefficient(_ string, group []models.GradeEntry) float64 {
	return group[0].Coefficient
}

// TableCoefficients weights subjects from a configured table keyed by exact subject name.
// Subjects missing from the table fall back to the first entry's coefficient.
type TableCoefficients map[string]float64

// Coefficient implements CoefficientSource.
func (t TableCoefficients) Coefficient(subject string, group []models.GradeEntry) float64 {
	if coef, ok := t[subject]; ok {
		return coef
	}
	return group[0].Coefficient
}

// FilterWindow returns the entries whose date falls inside window. A zero window keeps everything.
func FilterWindow(entries []models.GradeEntry, window models.DateWindow) []models.GradeEntry {
	if window.IsZero() {
		return entries
	}
	filtered := make([]models.GradeEntry, 0, len(entries))
	for _, entry := range entries {
		if window.Contains(entry.Date) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// AggregateSubjects groups entries by subject name (exact, case-sensitive match) in order of first
// appearance and computes each subject's mean score and weight.
func AggregateSubjects(entries []models.GradeEntry, source CoefficientSource) []models.SubjectAverage {
	if source == nil {
		source = FirstEntryCoefficients{}
	}
	order := make([]string, 0)
	groups := make(map[string][]models.GradeEntry)
	for _, entry := range entries {
		if _, seen := groups[entry.Subject]; !seen {
			order = append(order, entry.Subject)
		}
		groups[entry.Subject] = append(groups[entry.Subject], entry)
	}

	averages := make([]models.SubjectAverage, 0, len(order))
	for _, subject := range order {
		group := groups[subject]
		var sum float64
		for _, entry := range group {
			sum += entry.Score
		}
		averages = append(averages, models.SubjectAverage{
			Subject:     subject,
			Average:     Round2(sum / float64(len(group))),
			Coefficient: source.Coefficient(subject, group),
			Entries:     group,
		})
	}
	return averages
}
