package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stormwatch/internal/types"
)

func TestSubscriptionRepo_Get_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Get(context.Background(), "sub_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}

func TestSubscriptionRepo_ListDue(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	created := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	rows := newMockRows(func(dest ...any) error {
		*dest[0].(*string) = "sub_1"
		*dest[1].(*string) = "usr_1"
		*dest[2].(*string) = "Bay Area watch"
		*dest[3].(*types.SubscriptionMode) = types.ModeBuffer
		*dest[4].(*types.SubscriptionParams) = types.SubscriptionParams{
			Buffer: &types.BufferParams{
				Center:   types.Point{Lat: 37.8, Lon: -122.3},
				RadiusKm: 25,
			},
		}
		*dest[5].(*float64) = 2.0
		*dest[6].(*int) = 0
		*dest[7].(*bool) = false
		*dest[8].(*types.ScheduleFreq) = types.ScheduleDaily
		*dest[9].(*types.DeliveryChannel) = types.DeliveryEmail
		*dest[10].(*bool) = true
		*dest[11].(**time.Time) = nil
		*dest[12].(*time.Time) = created
		return nil
	})

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	subs, err := repo.ListDue(context.Background(), time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, subs, 1)

	s := subs[0]
	assert.Equal(t, "sub_1", s.ID)
	assert.Equal(t, types.ModeBuffer, s.Mode)
	require.NotNil(t, s.Params.Buffer)
	assert.Equal(t, 25.0, s.Params.Buffer.RadiusKm)
	assert.Nil(t, s.LastRunAt)
}

func TestSubscriptionRepo_ListDue_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.ListDue(context.Background(), time.Now())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestSubscriptionRepo_UpdateLastRunAt(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.UpdateLastRunAt(context.Background(), "sub_1", time.Now().UTC())
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSubscriptionRepo_UpdateLastRunAt_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.UpdateLastRunAt(context.Background(), "sub_missing", time.Now().UTC())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}
