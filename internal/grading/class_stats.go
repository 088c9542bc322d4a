package grading

import (
	"sort"

	"github.com/sourcegraph/conc/iter"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

// ClassInput is the fully fetched population of a class for one period.
// Roster lists active student IDs in display order.
type ClassInput struct {
	ClassID string
	TermID  string
	Roster  []string
	Entries map[string][]models.GradeEntry
	Window  models.DateWindow
}

// Engine computes class-wide results. The zero value evaluates sequentially-ranked results
// with first-entry coefficients on GOMAXPROCS workers.
type Engine struct {
	Workers      int
	Coefficients CoefficientSource
	Strategy     models.RankStrategy
}

// Compute evaluates every rostered student, then ranks them and aggregates per-subject statistics.
// Ranking needs the whole population, so all per-student results are collected first.
func (e Engine) Compute(in ClassInput) *models.ClassResults {
	strategy := e.Strategy
	if !strategy.Valid() {
		strategy = models.RankSequential
	}
	roster := dedupe(in.Roster)
	results := &models.ClassResults{
		ClassID:    in.ClassID,
		TermID:     in.TermID,
		Strategy:   strategy,
		ClassSize:  len(roster),
		Students:   []models.StudentResult{},
		Ranks:      map[string]models.StudentRank{},
		Statistics: []models.ClassSubjectStatistics{},
	}
	if len(roster) == 0 {
		return results
	}

	mapper := iter.Mapper[string, models.StudentResult]{MaxGoroutines: e.Workers}
	results.Students = mapper.Map(roster, func(studentID *string) models.StudentResult {
		return EvaluateStudent(*studentID, in.Entries[*studentID], in.Window, e.Coefficients)
	})
	results.Ranks = Rank(results.Students, strategy)
	results.Statistics = SubjectStatistics(results.Students)
	return results
}

// SubjectStatistics computes, per subject name, the mean, minimum and maximum of the students'
// subject averages. Output is sorted by subject name.
func SubjectStatistics(results []models.StudentResult) []models.ClassSubjectStatistics {
	type accumulator struct {
		sum, min, max float64
		count         int
	}
	acc := make(map[string]*accumulator)
	for _, res := range results {
		for _, subject := range res.Subjects {
			a, ok := acc[subject.Subject]
			if !ok {
				acc[subject.Subject] = &accumulator{sum: subject.Average, min: subject.Average, max: subject.Average, count: 1}
				continue
			}
			a.sum += subject.Average
			a.count++
			if subject.Average < a.min {
				a.min = subject.Average
			}
			if subject.Average > a.max {
				a.max = subject.Average
			}
		}
	}

	stats := make([]models.ClassSubjectStatistics, 0, len(acc))
	for subject, a := range acc {
		stats = append(stats, models.ClassSubjectStatistics{
			Subject: subject,
			Mean:    Round2(a.sum / float64(a.count)),
			Min:     a.min,
			Max:     a.max,
			Count:   a.count,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Subject < stats[j].Subject })
	return stats
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			unique = append(unique, id)
			seen[id] = true
		}
	}
	return unique
}
