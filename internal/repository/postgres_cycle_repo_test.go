package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/cyclelog/internal/model"
)

var cycleColumns = []string{"id", "owner_id", "start_date", "end_date", "created_at"}

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestPostgresCycleRepo_FindByID_ScansDates(t *testing.T) {
	db, mock := newMock(t)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM cycles WHERE id = $1`)).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(cycleColumns).AddRow("c1", "owner", start, end, time.Now()))

	c, err := NewPostgresCycleRepo(db).FindByID(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, day(2024, 1, 1), c.StartDate)
	require.NotNil(t, c.EndDate)
	assert.Equal(t, day(2024, 1, 28), *c.EndDate)
	assert.Equal(t, 28, c.LengthDays())
}

func TestPostgresCycleRepo_FindOpenByOwner_None(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`end_date IS NULL`)).
		WithArgs("owner").
		WillReturnRows(sqlmock.NewRows(cycleColumns))

	c, err := NewPostgresCycleRepo(db).FindOpenByOwner(context.Background(), "owner")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestPostgresCycleRepo_ListCovering_PassesDateAsText(t *testing.T) {
	db, mock := newMock(t)

	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY start_date DESC`)).
		WithArgs("owner", "2024-02-10").
		WillReturnRows(sqlmock.NewRows(cycleColumns).AddRow("c2", "owner", start, nil, time.Now()))

	cycles, err := NewPostgresCycleRepo(db).ListCovering(context.Background(), "owner", day(2024, 2, 10))
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.True(t, cycles[0].IsOpen())
}

func TestPostgresCycleRepo_Create(t *testing.T) {
	db, mock := newMock(t)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO cycles`)).
		WithArgs("c1", "owner", "2024-03-01", nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewPostgresCycleRepo(db).Create(context.Background(), &model.Cycle{
		ID: "c1", OwnerID: "owner", StartDate: day(2024, 3, 1), CreatedAt: now,
	})
	require.NoError(t, err)
}

func TestPostgresCycleRepo_Close_NotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE cycles SET end_date`)).
		WithArgs("c1", "2024-03-31").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewPostgresCycleRepo(db).Close(context.Background(), "c1", day(2024, 3, 31))
	assert.True(t, model.IsAPIErrorCode(err, model.ErrCodeCycleNotFound))
}

func TestPostgresCycleRepo_Delete_WrapsDriverError(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cycles WHERE id = $1`)).
		WithArgs("c1").
		WillReturnError(errors.New("connection reset"))

	err := NewPostgresCycleRepo(db).Delete(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete cycle")
}

func TestPostgresCycleRepo_DeleteByOwner_ReturnsCount(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cycles WHERE owner_id = $1`)).
		WithArgs("owner").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewPostgresCycleRepo(db).DeleteByOwner(context.Background(), "owner")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
