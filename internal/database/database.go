// Package database provides database connection management for streamwatch.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelstreet/streamwatch/internal/config"
)

const (
	// slowQueryThreshold is the duration above which queries are logged as slow.
	slowQueryThreshold = time.Second

	// maxSQLLogLength truncates SQL statements in logs to keep them readable.
	maxSQLLogLength = 200
)

// DB wraps a gorm.DB connection with streamwatch-specific helpers.
type DB struct {
	*gorm.DB
	driver string
	sqlDB  *sql.DB
}

// Options controls optional connection behaviour.
type Options struct {
	// PrepareStmt enables gorm's prepared statement cache. Disabled for
	// tests that share a single in-memory connection.
	PrepareStmt bool
}

// DefaultOptions returns the options used by the server.
func DefaultOptions() Options {
	return Options{PrepareStmt: true}
}

// New opens a database connection using the supplied configuration.
func New(cfg config.DatabaseConfig, logger *slog.Logger, opts Options) (*DB, error) {
	dialector, err := getDialector(cfg)
	if err != nil {
		return nil, err
	}

	gormLog := newSlogGormLogger(logger, cfg.LogLevel)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLog,
		PrepareStmt:            opts.PrepareStmt,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	maxIdle := cfg.MaxIdleConns
	if cfg.Driver == "sqlite" {
		// SQLite serializes writers; a small pool keeps contention and
		// SQLITE_BUSY churn down even with WAL enabled.
		if maxOpen > 6 {
			maxOpen = 6
		}
		if maxIdle > 3 {
			maxIdle = 3
		}
	}

	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	gormLog.setSQLDB(sqlDB)

	logger.Info("database connected",
		slog.String("driver", cfg.Driver),
		slog.Int("max_open_conns", maxOpen),
		slog.Int("max_idle_conns", maxIdle),
	)

	return &DB{DB: db, driver: cfg.Driver, sqlDB: sqlDB}, nil
}

// getDialector builds the gorm dialector for the configured driver.
func getDialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DSN
		if !strings.Contains(dsn, "_pragma") && !strings.Contains(dsn, ":memory:") {
			// WAL allows readers during writes; busy_timeout retries
			// instead of failing immediately under contention.
			dsn += "?_pragma=busy_timeout(30000)" +
				"&_pragma=journal_mode(WAL)" +
				"&_pragma=synchronous(NORMAL)" +
				"&_pragma=foreign_keys(ON)" +
				"&_pragma=cache_size(-64000)" +
				"&_pragma=mmap_size(268435456)" +
				"&_pragma=temp_store(MEMORY)" +
				"&_pragma=wal_autocheckpoint(1000)"
		}
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// Driver returns the configured driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.sqlDB.Close()
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.sqlDB.PingContext(ctx)
}

// WithContext returns a gorm session bound to ctx.
func (db *DB) WithContext(ctx context.Context) *gorm.DB {
	return db.DB.WithContext(ctx)
}

// Transaction runs fn inside a transaction bound to ctx.
func (db *DB) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.DB.WithContext(ctx).Transaction(fn)
}

// Stats returns connection pool statistics for health reporting.
func (db *DB) Stats() map[string]any {
	s := db.sqlDB.Stats()
	return map[string]any{
		"open_connections":     s.OpenConnections,
		"in_use":               s.InUse,
		"idle":                 s.Idle,
		"wait_count":           s.WaitCount,
		"wait_duration_ms":     s.WaitDuration.Milliseconds(),
		"max_open_connections": s.MaxOpenConnections,
	}
}

// slogGormLogger adapts gorm's logger interface onto slog.
type slogGormLogger struct {
	logger *slog.Logger
	level  gormlogger.LogLevel

	sqlDB *sql.DB

	statsMu       sync.Mutex
	lastStatsTime time.Time
}

func newSlogGormLogger(logger *slog.Logger, level string) *slogGormLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogGormLogger{
		logger: logger.With(slog.String("component", "database")),
		level:  parseGormLogLevel(level),
	}
}

func parseGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *slogGormLogger) setSQLDB(db *sql.DB) {
	l.sqlDB = db
}

// LogMode returns a copy of the logger at the given level.
func (l *slogGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &slogGormLogger{logger: l.logger, level: level, sqlDB: l.sqlDB}
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// Trace logs completed queries. The fast path returns before calling fc()
// when nothing would be logged.
func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	slow := elapsed >= slowQueryThreshold

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		if l.level < gormlogger.Error {
			return
		}
		sql, rows := fc()
		category := categorizeDBError(err)
		l.logger.ErrorContext(ctx, "query failed",
			slog.String("error", err.Error()),
			slog.String("category", category),
			slog.Duration("elapsed", elapsed),
			slog.Int64("rows", rows),
			slog.String("sql", truncateSQL(sql)),
		)
		if category == "busy" {
			l.logStatsOnError(ctx)
		}
	case slow:
		if l.level < gormlogger.Warn {
			return
		}
		sql, rows := fc()
		l.logger.WarnContext(ctx, "slow query",
			slog.Duration("elapsed", elapsed),
			slog.Int64("rows", rows),
			slog.String("sql", truncateSQL(sql)),
		)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.logger.DebugContext(ctx, "query",
			slog.Duration("elapsed", elapsed),
			slog.Int64("rows", rows),
			slog.String("sql", truncateSQL(sql)),
		)
	}
}

// categorizeDBError buckets driver errors so dashboards can tell lock
// contention apart from cancelled requests.
func categorizeDBError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := strings.ToUpper(err.Error())
	switch {
	case strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "DATABASE IS LOCKED"):
		return "busy"
	case strings.Contains(msg, "CONSTRAINT"):
		return "constraint"
	default:
		return "other"
	}
}

// logStatsOnError dumps pool statistics when the database reports lock
// contention, rate-limited to once a minute.
func (l *slogGormLogger) logStatsOnError(ctx context.Context) {
	if l.sqlDB == nil {
		return
	}

	l.statsMu.Lock()
	if time.Since(l.lastStatsTime) < time.Minute {
		l.statsMu.Unlock()
		return
	}
	l.lastStatsTime = time.Now()
	l.statsMu.Unlock()

	s := l.sqlDB.Stats()
	l.logger.WarnContext(ctx, "connection pool stats after busy error",
		slog.Int("open", s.OpenConnections),
		slog.Int("in_use", s.InUse),
		slog.Int("idle", s.Idle),
		slog.Int64("wait_count", s.WaitCount),
		slog.Duration("wait_duration", s.WaitDuration),
	)
}

func truncateSQL(sql string) string {
	if len(sql) <= maxSQLLogLength {
		return sql
	}
	return sql[:maxSQLLogLength] + "..."
}
