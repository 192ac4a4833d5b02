package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ErrNotFound is returned when a record does not exist or is not owned by
// the requesting user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("record not found")

type DBManager struct {
	DB  *sqlx.DB
	now func() time.Time
}

// NewDBConnection opens the SQLite database at databasePath (":memory:" is
// accepted) and applies the embedded migrations.
func NewDBConnection(databasePath string) (*DBManager, error) {
	dsn := databasePath
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on"
	}

	dbx, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer, and an in-memory database only lives as
	// long as its one connection.
	dbx.SetMaxOpenConns(1)

	if err := migrateUp(dbx); err != nil {
		dbx.Close()
		return nil, err
	}

	return &DBManager{
		DB:  dbx,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func migrateUp(dbx *sqlx.DB) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(dbx.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// SetClock replaces the time source used for created_at/updated_at columns.
func (dbm *DBManager) SetClock(now func() time.Time) {
	dbm.now = now
}

func (dbm *DBManager) Close() error {
	return dbm.DB.Close()
}

func (dbm *DBManager) timestamp() time.Time {
	return dbm.now().UTC()
}
