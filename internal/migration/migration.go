package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// ErrDirtySchema means a previous run stopped half way through a migration.
var ErrDirtySchema = errors.New("dirty_schema")

// Status is the schema version after a run.
type Status struct {
	Version uint
	Applied bool
}

// RunMigrations brings the storefront schema up to the newest embedded version.
// The shared *sql.DB stays open afterwards.
func RunMigrations(db *sql.DB, log *zap.Logger) (Status, error) {
	if db == nil {
		return Status{}, errors.New("migration database handle is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	source, err := iofs.New(embeddedMigrations, migrationsDir)
	if err != nil {
		return Status{}, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "storefront_schema_migrations"})
	if err != nil {
		return Status{}, fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return Status{}, fmt.Errorf("create migrator: %w", err)
	}

	before, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return Status{Version: before}, fmt.Errorf("schema version %d: %w", before, ErrDirtySchema)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return Status{}, fmt.Errorf("apply migrations: %w", upErr)
	}

	after, _, err := migrator.Version()
	if err != nil {
		return Status{}, fmt.Errorf("read schema version: %w", err)
	}
	status := Status{Version: after, Applied: after != before}
	log.Info("schema migrated",
		zap.Uint("from_version", before),
		zap.Uint("version", after),
		zap.Bool("applied", status.Applied),
	)
	return status, nil
}

// Versions lists the embedded migration versions in ascending order.
func Versions() ([]string, error) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if ok {
			seen[version] = struct{}{}
		}
	}
	versions := make([]string, 0, len(seen))
	for version := range seen {
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions, nil
}
