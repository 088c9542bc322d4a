package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	start := time.Date(2024, time.September, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.December, 20, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "name", "type", "academic_year", "start_date", "end_date", "is_active"}).
		AddRow("term-1", "Trimestre 1", "TRIMESTER", "2024-2025", start, end, true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, type, academic_year, start_date, end_date, is_active FROM terms WHERE id = $1")).
		WithArgs("term-1").
		WillReturnRows(rows)

	term, err := NewTermRepository(db).FindByID(context.Background(), "term-1")
	require.NoError(t, err)
	assert.Equal(t, "Trimestre 1", term.Name)
	window := term.Window()
	require.NotNil(t, window.Start)
	assert.True(t, window.Start.Equal(start))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTermRepositoryFindActive(t *testing.T) {
	db, mock, cleanup := newLedgerRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "type", "academic_year", "start_date", "end_date", "is_active"}).
		AddRow("term-2", "Trimestre 2", "TRIMESTER", "2024-2025", time.Now(), time.Now(), true)
	mock.ExpectQuery(regexp.QuoteMeta("FROM terms WHERE is_active = TRUE ORDER BY start_date DESC LIMIT 1")).
		WillReturnRows(rows)

	term, err := NewTermRepository(db).FindActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "term-2", term.ID)
}
