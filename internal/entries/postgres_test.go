package entries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
	"github.com/medrex/glucose-tracker/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgresRepository(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresRepository(db, logger.Discard(), monitoring.NewMetricsCollector("pg-test")).(*PostgresRepository)
	return repo, mock
}

func TestPostgresRepository_Create(t *testing.T) {
	repo, mock := setupPostgresRepository(t)
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	created := ts.Add(time.Second)

	mock.ExpectQuery("INSERT INTO glucose_entries").
		WithArgs(120.0, ts, "fasting", "L1R").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))

	entry, err := repo.Create(context.Background(), &types.Entry{
		Value:        120,
		Timestamp:    ts,
		Description:  "fasting",
		PunctureSpot: "L1R",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), entry.ID)
	assert.Equal(t, created, entry.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateWithoutSiteStoresNull(t *testing.T) {
	repo, mock := setupPostgresRepository(t)
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO glucose_entries").
		WithArgs(99.0, ts, "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), ts))

	_, err := repo.Create(context.Background(), &types.Entry{Value: 99, Timestamp: ts})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListUsesOrderAndOffset(t *testing.T) {
	repo, mock := setupPostgresRepository(t)
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "value", "taken_at", "description", "puncture_spot", "created_at"}).
		AddRow(int64(3), 90.0, ts, "", nil, ts).
		AddRow(int64(4), 95.0, ts, "walk", "R5L", ts)

	mock.ExpectQuery(`ORDER BY value ASC, id ASC\s+LIMIT \$1 OFFSET \$2`).
		WithArgs(10, 10).
		WillReturnRows(rows)

	entries, err := repo.List(context.Background(), &types.ListQuery{SortBy: types.SortValueAsc, Page: 2, Size: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "", entries[0].PunctureSpot)
	assert.Equal(t, "R5L", entries[1].PunctureSpot)
	assert.Equal(t, "walk", entries[1].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Count(t *testing.T) {
	repo, mock := setupPostgresRepository(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM glucose_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestPostgresRepository_Delete(t *testing.T) {
	repo, mock := setupPostgresRepository(t)

	mock.ExpectExec("DELETE FROM glucose_entries").WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM glucose_entries").WithArgs(int64(6)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM glucose_entries").WithArgs(int64(7)).WillReturnError(errors.New("connection reset"))

	assert.NoError(t, repo.Delete(context.Background(), 5))
	assert.True(t, types.IsNotFound(repo.Delete(context.Background(), 6)))

	err := repo.Delete(context.Background(), 7)
	assert.Error(t, err)
	assert.False(t, types.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
