package index

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteCatalog is a Catalog backed by a local sqlite database, recording
// which locator a key was last stored under. It is the persisted state
// the core specification allows the ArtifactIndex to keep on disk.
type SQLiteCatalog struct {
	db      *sqlx.DB
	builder goqu.DialectWrapper
}

// OpenSQLiteCatalog opens (creating if necessary) a sqlite database at path
// and migrates its schema to the latest version.
func OpenSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening catalog database: %w", err)
	}
	if err := migrateSchema(db.DB, path); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteCatalog{db: db, builder: goqu.Dialect("sqlite3")}, nil
}

func migrateSchema(db *sql.DB, path string) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("error loading embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("error preparing migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error migrating catalog schema: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) Close() error { return c.db.Close() }

// Locator returns the stored locator for key, or "" if key has never been recorded.
func (c *SQLiteCatalog) Locator(ctx context.Context, key string) (string, error) {
	query, args, err := c.builder.From("artifacts").
		Select("locator").
		Where(goqu.Ex{"key": key}).
		ToSQL()
	if err != nil {
		return "", fmt.Errorf("error building catalog query: %w", err)
	}
	var locator string
	err = c.db.GetContext(ctx, &locator, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("error querying catalog: %w", err)
	}
	return locator, nil
}

// Record upserts the (key, locator) pair.
func (c *SQLiteCatalog) Record(ctx context.Context, key, locator string) error {
	query, args, err := c.builder.Insert("artifacts").
		Rows(goqu.Record{"key": key, "locator": locator}).
		OnConflict(goqu.DoUpdate("key", goqu.Record{"locator": locator})).
		ToSQL()
	if err != nil {
		return fmt.Errorf("error building catalog upsert: %w", err)
	}
	_, err = c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error recording catalog entry: %w", err)
	}
	return nil
}
