package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// NewSQLiteRepository opens a SQLite database file, or a private in-memory
// database for ":memory:". Transactions take the write lock when they begin,
// so a checkout never races another writer between its reads and writes.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", dbPath)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every connection to ":memory:" is a different database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newSQLRepository(db, DriverSQLite), nil
}

// RunMigrations applies the migrations for the repository's dialect found in dir.
func (r *SQLRepository) RunMigrations(dir string) error {
	var (
		m   *migrate.Migrate
		err error
	)

	switch r.driver {
	case DriverSQLite:
		driver, dErr := sqlite.WithInstance(r.db, &sqlite.Config{})
		if dErr != nil {
			return fmt.Errorf("could not create migration driver: %w", dErr)
		}
		m, err = migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", dir), DriverSQLite, driver)
	case DriverPostgres:
		m, err = newPostgresMigrate(r.db, dir)
	default:
		return fmt.Errorf("unsupported migration driver %q", r.driver)
	}
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}
