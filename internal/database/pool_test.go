package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/agentrelay/config"
)

func newMockGorm(t *testing.T) (sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{})
	require.NoError(t, err)
	return mock, gdb
}

func quietLimits() Limits {
	return Limits{MaxOpen: 10, MaxIdle: 5, MaxLifetime: time.Hour}
}

func TestNewPool_AppliesLimits(t *testing.T) {
	_, gdb := newMockGorm(t)

	p, err := NewPool(gdb, quietLimits(), zap.NewNop())
	require.NoError(t, err)

	assert.Same(t, gdb, p.DB())
	assert.Equal(t, 10, p.Stats().MaxOpenConnections)
}

func TestNewPool_RejectsNil(t *testing.T) {
	_, err := NewPool(nil, quietLimits(), nil)
	assert.Error(t, err)
}

func TestPool_Ping(t *testing.T) {
	mock, gdb := newMockGorm(t)
	p, err := NewPool(gdb, quietLimits(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, p.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, p.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPool_ReportOnlyAfterSuccessfulPing(t *testing.T) {
	mock, gdb := newMockGorm(t)

	var reports int
	p, err := NewPool(gdb, quietLimits(), zap.NewNop(), WithStatsHook(func(open, idle int) {
		reports++
		assert.GreaterOrEqual(t, open, idle)
	}))
	require.NoError(t, err)

	mock.ExpectPing()
	p.report(context.Background())
	assert.Equal(t, 1, reports)

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	p.report(context.Background())
	assert.Equal(t, 1, reports)
}

func TestPool_CloseStopsMonitor(t *testing.T) {
	mock, gdb := newMockGorm(t)
	limits := quietLimits()
	limits.Monitor = time.Hour
	p, err := NewPool(gdb, limits, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Ping(context.Background()), ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialector(t *testing.T) {
	tests := []struct {
		driver  string
		name    string
		want    string
		wantErr bool
	}{
		{driver: "postgres", name: "relay", want: "postgres"},
		{driver: "mysql", name: "relay", want: "mysql"},
		{driver: "sqlite", name: "relay.db", want: "sqlite"},
		{driver: "sqlite", name: "", wantErr: true},
		{driver: "oracle", name: "relay", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver+"/"+tt.name, func(t *testing.T) {
			d, err := Dialector(config.DatabaseConfig{Driver: tt.driver, Name: tt.name})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestOpen_SQLiteMemory(t *testing.T) {
	p, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: "file::memory:", MaxOpenConns: 8}, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 1, p.Stats().MaxOpenConnections)
	assert.NoError(t, p.Ping(context.Background()))

	require.NoError(t, p.DB().Exec("CREATE TABLE t (id INTEGER)").Error)
	require.NoError(t, p.DB().Exec("INSERT INTO t VALUES (1)").Error)

	var n int64
	require.NoError(t, p.DB().Table("t").Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
