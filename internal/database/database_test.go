package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelstreet/streamwatch/internal/config"
	"github.com/angelstreet/streamwatch/internal/observability"
)

func testDatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	}
}

type testRow struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func openTestDB(t *testing.T) *DB {
	t.Helper()

	logger := observability.NewLogger(config.LoggingConfig{Level: "error", Format: "text"})
	db, err := New(testDatabaseConfig(), logger, Options{PrepareStmt: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestNew_SQLite(t *testing.T) {
	db := openTestDB(t)

	assert.Equal(t, "sqlite", db.Driver())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestNew_UnsupportedDriver(t *testing.T) {
	cfg := testDatabaseConfig()
	cfg.Driver = "oracle"

	logger := observability.NewLogger(config.LoggingConfig{Level: "error", Format: "text"})
	_, err := New(cfg, logger, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestDB_Transaction_Commit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AutoMigrate(&testRow{}))

	err := db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testRow{Name: "committed"}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.WithContext(ctx).Model(&testRow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDB_Transaction_Rollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.AutoMigrate(&testRow{}))

	sentinel := errors.New("abort")
	err := db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testRow{Name: "doomed"}).Error; err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	var count int64
	require.NoError(t, db.WithContext(ctx).Model(&testRow{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestDB_Stats(t *testing.T) {
	db := openTestDB(t)

	stats := db.Stats()
	assert.Contains(t, stats, "open_connections")
	assert.Contains(t, stats, "in_use")
	assert.Contains(t, stats, "idle")
	assert.Contains(t, stats, "wait_count")
	assert.Contains(t, stats, "max_open_connections")
}

func TestGetDialector_SQLitePragmas(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", DSN: "streamwatch.db"}
	dialector, err := getDialector(cfg)
	require.NoError(t, err)
	require.NotNil(t, dialector)

	// In-memory DSNs must not get file pragmas appended
	cfg.DSN = ":memory:"
	dialector, err = getDialector(cfg)
	require.NoError(t, err)
	require.NotNil(t, dialector)
}

func TestParseGormLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"INFO", gormlogger.Info},
		{"unknown", gormlogger.Warn},
		{"", gormlogger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseGormLogLevel(tt.input))
		})
	}
}

func TestCategorizeDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"canceled", context.Canceled, "canceled"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"busy", errors.New("SQLITE_BUSY: database is locked"), "busy"},
		{"locked lowercase", errors.New("database is locked (5)"), "busy"},
		{"constraint", errors.New("UNIQUE constraint failed: playback_events.id"), "constraint"},
		{"other", errors.New("no such table: playback_events"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, categorizeDBError(tt.err))
		})
	}
}

func TestTruncateSQL(t *testing.T) {
	short := "SELECT * FROM playback_events"
	assert.Equal(t, short, truncateSQL(short))

	long := "SELECT " + strings.Repeat("x", maxSQLLogLength)
	truncated := truncateSQL(long)
	assert.Len(t, truncated, maxSQLLogLength+3)
	assert.True(t, strings.HasSuffix(truncated, "..."))
}

func TestSlogGormLogger_TraceSkipsWhenSilent(t *testing.T) {
	l := newSlogGormLogger(nil, "silent")

	called := false
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		called = true
		return "SELECT 1", 1
	}, nil)

	assert.False(t, called, "fc should not run when nothing would be logged")
}
