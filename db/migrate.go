package db

import (
	"fmt"

	"gorm.io/gorm"
)

type Migration struct {
	Version string
	Name    string
	Up      func(*gorm.DB) error
}

type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

func CreateMigrator(db *gorm.DB) *Migrator {
	m := &Migrator{
		db:         db,
		migrations: make([]Migration, 0),
	}
	m.registerCoreMigrations()
	return m
}

func (m *Migrator) AddMigration(version, name string, up func(*gorm.DB) error) {
	m.migrations = append(m.migrations, Migration{
		Version: version,
		Name:    name,
		Up:      up,
	})
}

func (m *Migrator) registerCoreMigrations() {
	m.AddMigration("001", "create_resources", func(db *gorm.DB) error {
		return db.Exec(`
			CREATE TABLE IF NOT EXISTS resources (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				name VARCHAR(255) NOT NULL,
				kind VARCHAR(64) NOT NULL,
				capacity INTEGER NOT NULL DEFAULT 1,
				status VARCHAR(32) NOT NULL DEFAULT 'active',
				version BIGINT NOT NULL DEFAULT 1,
				metadata JSONB,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_resources_kind ON resources(kind);
		`).Error
	})

	m.AddMigration("002", "create_bookings", func(db *gorm.DB) error {
		return db.Exec(`
			CREATE TABLE IF NOT EXISTS bookings (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				resource_id UUID NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				title VARCHAR(255),
				notes TEXT,
				starts_at TIMESTAMP NOT NULL,
				ends_at TIMESTAMP NOT NULL,
				status VARCHAR(32) NOT NULL DEFAULT 'pending',
				version BIGINT NOT NULL DEFAULT 1,
				deposit_charge_id VARCHAR(255),
				idempotency_key VARCHAR(255),
				archived_at TIMESTAMP,
				archive_reason VARCHAR(255),
				metadata JSONB,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_bookings_resource_id ON bookings(resource_id);
			CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id);
			CREATE INDEX IF NOT EXISTS idx_bookings_starts_at ON bookings(starts_at);
			CREATE INDEX IF NOT EXISTS idx_bookings_idempotency_key ON bookings(idempotency_key);
		`).Error
	})

	m.AddMigration("003", "create_idempotency_records", func(db *gorm.DB) error {
		return db.Exec(`
			CREATE TABLE IF NOT EXISTS idempotency_records (
				key VARCHAR(255) PRIMARY KEY,
				status VARCHAR(32) NOT NULL DEFAULT 'processing',
				response_code INTEGER,
				response_body BYTEA,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				expires_at TIMESTAMP NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_idempotency_records_expires_at ON idempotency_records(expires_at);
		`).Error
	})

	m.AddMigration("004", "create_sessions", func(db *gorm.DB) error {
		return db.Exec(`
			CREATE TABLE IF NOT EXISTS sessions (
				id UUID PRIMARY KEY,
				user_id VARCHAR(255) NOT NULL,
				current_token_hash VARCHAR(64) NOT NULL,
				previous_token_hash VARCHAR(64),
				rotation_counter BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				last_seen_at TIMESTAMP,
				expires_at TIMESTAMP NOT NULL,
				revoked_at TIMESTAMP,
				revoke_reason VARCHAR(64)
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
		`).Error
	})
}

func (m *Migrator) Up() error {
	if err := m.createMigrationsTable(); err != nil {
		return err
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if applied[migration.Version] {
			continue
		}

		if err := migration.Up(m.db); err != nil {
			return fmt.Errorf("failed to apply migration %s: %v", migration.Version, err)
		}

		if err := m.recordMigration(migration.Version, migration.Name); err != nil {
			return err
		}
	}

	return nil
}

func (m *Migrator) createMigrationsTable() error {
	return m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`).Error
}

func (m *Migrator) getAppliedMigrations() (map[string]bool, error) {
	var results []struct {
		Version string
	}

	if err := m.db.Table("schema_migrations").Select("version").Find(&results).Error; err != nil {
		return nil, err
	}

	applied := make(map[string]bool)
	for _, result := range results {
		applied[result.Version] = true
	}

	return applied, nil
}

func (m *Migrator) recordMigration(version, name string) error {
	return m.db.Exec(`
		INSERT INTO schema_migrations (version, name)
		VALUES (?, ?)
		ON CONFLICT (version) DO NOTHING
	`, version, name).Error
}

func (m *Migrator) Status() ([]MigrationStatus, error) {
	applied, err := m.getAppliedMigrations()
	if err != nil {
		return nil, err
	}

	var statuses []MigrationStatus
	for _, migration := range m.migrations {
		statuses = append(statuses, MigrationStatus{
			Version: migration.Version,
			Name:    migration.Name,
			Applied: applied[migration.Version],
		})
	}

	return statuses, nil
}

type MigrationStatus struct {
	Version string
	Name    string
	Applied bool
}
