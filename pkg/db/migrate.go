package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ErrNoMigrations is returned when the migrations directory does not exist
var ErrNoMigrations = errors.New("migrations directory not found")

// MigrationResult reports the schema version after a run
type MigrationResult struct {
	Version uint
	Dirty   bool
	Applied bool // false when the schema was already up to date
}

// RunMigrations applies every pending migration found in dir.
// The underlying pool stays open.
func (m *Manager) RunMigrations(dir string) (MigrationResult, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to resolve migrations path: %w", err)
	}
	if info, err := os.Stat(absPath); err != nil || !info.IsDir() {
		return MigrationResult{}, fmt.Errorf("%w: %s", ErrNoMigrations, absPath)
	}

	sqlDB, err := m.SqlDB()
	if err != nil {
		return MigrationResult{}, err
	}

	var driver database.Driver
	switch m.params.Driver {
	case DriverMySQL:
		driver, err = migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
	case DriverSQLite:
		driver, err = sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedDriver, m.params.Driver)
	}
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to create migration driver: %w", err)
	}

	mg, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(absPath), m.params.Driver, driver)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	result := MigrationResult{Applied: true}
	if err := mg.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationResult{}, fmt.Errorf("failed to run migrations: %w", err)
		}
		result.Applied = false
	}

	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationResult{}, fmt.Errorf("failed to read migration version: %w", err)
	}
	result.Version = version
	result.Dirty = dirty
	return result, nil
}
