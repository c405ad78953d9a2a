// Package migrations provides versioned schema migrations for streamwatch.
package migrations

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Migration is a single versioned schema change. Up applies it, Down
// reverts it. Versions are zero-padded strings compared lexically.
type Migration struct {
	Version     string
	Description string
	Up          func(ctx context.Context, tx *gorm.DB) error
	Down        func(ctx context.Context, tx *gorm.DB) error
}

// MigrationRecord tracks an applied migration in the database.
type MigrationRecord struct {
	Version     string    `gorm:"primaryKey;size:14"`
	Description string    `gorm:"size:255"`
	AppliedAt   time.Time `gorm:"not null"`
}

// TableName returns the migrations tracking table name.
func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// Status reports whether a registered migration has been applied.
type Status struct {
	Version     string
	Description string
	Applied     bool
	AppliedAt   *time.Time
}

// Migrator applies registered migrations in version order.
type Migrator struct {
	db         *gorm.DB
	logger     *slog.Logger
	migrations []Migration
}

// NewMigrator creates a migrator. A nil logger falls back to slog.Default.
func NewMigrator(db *gorm.DB, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		db:     db,
		logger: logger.With(slog.String("component", "migrations")),
	}
}

// Register adds a single migration.
func (m *Migrator) Register(migration Migration) {
	m.migrations = append(m.migrations, migration)
}

// RegisterAll adds a batch of migrations.
func (m *Migrator) RegisterAll(migrations []Migration) {
	m.migrations = append(m.migrations, migrations...)
}

// init ensures the tracking table exists.
func (m *Migrator) init(ctx context.Context) error {
	return m.db.WithContext(ctx).AutoMigrate(&MigrationRecord{})
}

// Up applies all pending migrations in ascending version order. Each
// migration runs in its own transaction together with its record insert.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.init(ctx); err != nil {
		return fmt.Errorf("initializing migrations table: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(m.migrations))
	copy(sorted, m.migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	for _, migration := range sorted {
		if applied[migration.Version] {
			continue
		}

		m.logger.Info("applying migration",
			slog.String("version", migration.Version),
			slog.String("description", migration.Description),
		)

		start := time.Now()
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(ctx, tx); err != nil {
				return err
			}
			record := MigrationRecord{
				Version:     migration.Version,
				Description: migration.Description,
				AppliedAt:   time.Now().UTC(),
			}
			return tx.Create(&record).Error
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", migration.Version, err)
		}

		m.logger.Info("migration applied",
			slog.String("version", migration.Version),
			slog.Duration("elapsed", time.Since(start)),
		)
	}

	return nil
}

// Down rolls back the most recently applied migration. It is a no-op when
// nothing has been applied.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.init(ctx); err != nil {
		return fmt.Errorf("initializing migrations table: %w", err)
	}

	var record MigrationRecord
	err := m.db.WithContext(ctx).Order("version DESC").First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return fmt.Errorf("finding last migration: %w", err)
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == record.Version {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %s is applied but not registered", record.Version)
	}
	if target.Down == nil {
		return fmt.Errorf("migration %s has no rollback", record.Version)
	}

	m.logger.Info("rolling back migration",
		slog.String("version", target.Version),
		slog.String("description", target.Description),
	)

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := target.Down(ctx, tx); err != nil {
			return fmt.Errorf("rolling back migration %s: %w", target.Version, err)
		}
		return tx.Where("version = ?", target.Version).Delete(&MigrationRecord{}).Error
	})
}

// Status returns the applied state of every registered migration, in
// ascending version order.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	if err := m.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing migrations table: %w", err)
	}

	records, err := m.appliedRecords(ctx)
	if err != nil {
		return nil, err
	}

	sorted := make([]Migration, len(m.migrations))
	copy(sorted, m.migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	statuses := make([]Status, 0, len(sorted))
	for _, migration := range sorted {
		status := Status{
			Version:     migration.Version,
			Description: migration.Description,
		}
		if record, ok := records[migration.Version]; ok {
			status.Applied = true
			appliedAt := record.AppliedAt
			status.AppliedAt = &appliedAt
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	records, err := m.appliedRecords(ctx)
	if err != nil {
		return nil, err
	}
	versions := make(map[string]bool, len(records))
	for version := range records {
		versions[version] = true
	}
	return versions, nil
}

func (m *Migrator) appliedRecords(ctx context.Context) (map[string]MigrationRecord, error) {
	var records []MigrationRecord
	if err := m.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("loading applied migrations: %w", err)
	}
	byVersion := make(map[string]MigrationRecord, len(records))
	for _, record := range records {
		byVersion[record.Version] = record
	}
	return byVersion, nil
}
