package models

// RosterStudent is an actively enrolled student with the identity printed on bulletins.
type RosterStudent struct {
	StudentID string `db:"student_id" json:"student_id"`
	NIS       string `db:"nis" json:"nis"`
	FullName  string `db:"full_name" json:"full_name"`
	ClassID   string `db:"class_id" json:"class_id"`
	ClassName string `db:"class_name" json:"class_name"`
	TermID    string `db:"term_id" json:"term_id"`
}

// SubjectTeacher maps a subject name to the teacher label printed on a bulletin row.
type SubjectTeacher struct {
	Subject     string `db:"subject"`
	TeacherName string `db:"teacher_name"`
}

// SubjectCoefficient is a configured subject weight for a class.
type SubjectCoefficient struct {
	Subject     string  `db:"subject"`
	Coefficient float64 `db:"coefficient"`
}
