package grading

import (
	"sort"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

// Rank orders students by descending general average and assigns 1-based ranks.
//
// RankSequential gives every student a distinct rank; tied students keep their input (roster)
// order. RankCompetition gives tied students the same rank and skips the positions they use.
// Unknown strategies fall back to RankSequential.
func Rank(results []models.StudentResult, strategy models.RankStrategy) map[string]models.StudentRank {
	ranks := make(map[string]models.StudentRank, len(results))
	if len(results) == 0 {
		return ranks
	}
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return results[order[a]].GeneralAverage > results[order[b]].GeneralAverage
	})

	previousRank := 0
	for pos, idx := range order {
		res := results[idx]
		rank := pos + 1
		if strategy == models.RankCompetition && pos > 0 && res.GeneralAverage == results[order[pos-1]].GeneralAverage {
			rank = previousRank
		}
		previousRank = rank
		ranks[res.StudentID] = models.StudentRank{
			StudentID:      res.StudentID,
			Rank:           rank,
			GeneralAverage: res.GeneralAverage,
		}
	}
	return ranks
}

// RankedOrder returns student IDs sorted by rank, ties in input order.
func RankedOrder(results []models.StudentResult, ranks map[string]models.StudentRank) []string {
	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.StudentID
	}
	sort.SliceStable(ids, func(a, b int) bool {
		return ranks[ids[a]].Rank < ranks[ids[b]].Rank
	})
	return ids
}
