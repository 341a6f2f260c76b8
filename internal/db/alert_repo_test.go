package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stormwatch/internal/types"
)

func TestAlertRepo_Exists(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*bool) = true
			return nil
		}})

	found, err := repo.Exists(context.Background(), "sub_1", "ve_1")
	require.NoError(t, err)
	assert.True(t, found)
	db.AssertExpectations(t)
}

func TestAlertRepo_Exists_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection refused")})

	_, err := repo.Exists(context.Background(), "sub_1", "ve_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestAlertRepo_Record_Inserted(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	inserted, err := repo.Record(context.Background(), "sub_1", "ve_1", "fac_1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, inserted)
	db.AssertExpectations(t)
}

func TestAlertRepo_Record_DuplicatePairIsNoop(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	inserted, err := repo.Record(context.Background(), "sub_1", "ve_1", "fac_1", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestAlertRepo_Record_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAlertRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := repo.Record(context.Background(), "sub_1", "ve_1", "fac_1", time.Now().UTC())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
