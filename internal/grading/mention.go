package grading

// Mention labels, highest band first.
const (
	MentionExcellent   = "Excellent"
	MentionTresBien    = "Très Bien"
	MentionBien        = "Bien"
	MentionAssezBien   = "Assez Bien"
	MentionPassable    = "Passable"
	MentionInsuffisant = "Insuffisant"
)

type mentionBand struct {
	min   float64
	label string
}

var mentionBands = []mentionBand{
	{min: 18, label: MentionExcellent},
	{min: 16, label: MentionTresBien},
	{min: 14, label: MentionBien},
	{min: 12, label: MentionAssezBien},
	{min: 10, label: MentionPassable},
}

// MentionFor maps a general average to its qualitative label. Lower bounds are inclusive.
func MentionFor(average float64) string {
	for _, band := range mentionBands {
		if average >= band.min {
			return band.label
		}
	}
	return MentionInsuffisant
}
