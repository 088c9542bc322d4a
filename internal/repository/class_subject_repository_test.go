package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassSubjectRepositoryTeacherLabels(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"subject", "teacher_name"}).
		AddRow("Anglais", "Mme Sow").
		AddRow("Mathématiques", "M. Ndiaye").
		AddRow("Philosophie", "")
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(u.full_name, '') AS teacher_name FROM class_subjects cs")).
		WithArgs("class-1").
		WillReturnRows(rows)

	labels, err := NewClassSubjectRepository(db).TeacherLabels(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Anglais": "Mme Sow", "Mathématiques": "M. Ndiaye"}, labels)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassSubjectRepositoryHasTeacher(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM class_subjects WHERE class_id = $1 AND teacher_id = $2)")).
		WithArgs("class-1", "teacher-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := NewClassSubjectRepository(db).HasTeacher(context.Background(), "class-1", "teacher-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubjectCoefficientRepositoryClassOverridesDefaults(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"subject", "coefficient"}).
		AddRow("Mathématiques", 4.0).
		AddRow("Philosophie", 2.0).
		AddRow("Mathématiques", 5.0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM subject_coefficients WHERE class_id = $1 OR class_id IS NULL ORDER BY class_id NULLS FIRST")).
		WithArgs("class-1").
		WillReturnRows(rows)

	table, err := NewSubjectCoefficientRepository(db).TableForClass(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Mathématiques": 5, "Philosophie": 2}, table)
	require.NoError(t, mock.ExpectationsWereMet())
}
