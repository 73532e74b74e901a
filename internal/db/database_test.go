package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return gdb, mock
}

func TestPing(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectPing()
	assert.NoError(t, Ping(context.Background(), gdb))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err := Ping(context.Background(), gdb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping db")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
