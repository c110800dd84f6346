package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupMockDB(t)
	defer mockDB.Close()

	config := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewPoolManager(gormDB, config, zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, manager.DB())
	assert.Equal(t, config, manager.config)

	_, err = NewPoolManager(nil, config, zap.NewNop())
	assert.Error(t, err)
}

func TestPoolManagerPingAndClose(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 5, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, manager.Ping(context.Background()))

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close()) // 二次关闭幂等

	err = manager.Ping(context.Background())
	assert.Error(t, err)
}

func TestWithTransactionRetrySucceedsAfterDeadlock(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 5, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithTransactionRetryGivesUpOnPermanentError(t *testing.T) {
	mockDB, mock, gormDB := setupMockDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 5, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		attempts++
		return errors.New("syntax error")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(errors.New("Deadlock found when trying to get lock")))
	assert.True(t, isRetryableError(errors.New("ERROR: serialization failure (SQLSTATE 40001)")))
	assert.True(t, isRetryableError(errors.New("driver: bad connection")))
	assert.False(t, isRetryableError(errors.New("syntax error at or near")))
}
