package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
)

// SchemaStatus describes the schema version recorded by the migration driver.
type SchemaStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	// Applied is false on a database no migration has touched yet.
	Applied bool `json:"applied"`
}

func (s SchemaStatus) String() string {
	if !s.Applied {
		return "no migrations applied"
	}
	return fmt.Sprintf("version %d (dirty: %t)", s.Version, s.Dirty)
}

// migrateLogger routes driver output into logrus at debug level.
type migrateLogger struct {
	entry *logrus.Entry
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}

// MigrationRunner applies the decision log and forecast schema files.
type MigrationRunner struct {
	m   *migrate.Migrate
	dir string
	log *logrus.Entry
}

// NewMigrationRunner opens the migration files in dir against databaseURL,
// a postgres:// URL as built by URL. A directory without any *.up.sql file is
// rejected before the database is contacted.
func NewMigrationRunner(databaseURL, dir string, logger *logrus.Logger) (*MigrationRunner, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving migrations directory: %w", err)
	}
	ups, err := filepath.Glob(filepath.Join(abs, "*.up.sql"))
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}
	if len(ups) == 0 {
		if _, statErr := os.Stat(abs); statErr != nil {
			return nil, fmt.Errorf("migrations directory %s: %w", abs, statErr)
		}
		return nil, fmt.Errorf("no *.up.sql migrations in %s", abs)
	}

	m, err := migrate.New("file://"+filepath.ToSlash(abs), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening migrations: %w", err)
	}

	entry := logger.WithField("component", "migrations")
	m.Log = migrateLogger{entry: entry}

	return &MigrationRunner{m: m, dir: abs, log: entry}, nil
}

// Up applies every pending migration.
func (r *MigrationRunner) Up(ctx context.Context) error {
	return r.apply(ctx, "up", r.m.Up)
}

// Down rolls back the given number of migrations, one when steps is not positive.
func (r *MigrationRunner) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return r.apply(ctx, fmt.Sprintf("down %d", steps), func() error {
		return r.m.Steps(-steps)
	})
}

// Status reports the current schema version.
func (r *MigrationRunner) Status() (SchemaStatus, error) {
	version, dirty, err := r.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return SchemaStatus{}, nil
	case err != nil:
		return SchemaStatus{}, fmt.Errorf("reading schema version: %w", err)
	}
	return SchemaStatus{Version: version, Dirty: dirty, Applied: true}, nil
}

// apply runs step, asking the driver to stop after the current file when ctx
// is cancelled. Nothing to do is not an error.
func (r *MigrationRunner) apply(ctx context.Context, action string, step func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.m.GracefulStop <- true
		case <-done:
		}
	}()

	log := r.log.WithFields(logrus.Fields{"action": action, "dir": r.dir})
	log.Info("Applying migrations")

	err := step()
	var short migrate.ErrShortLimit
	switch {
	case errors.Is(err, migrate.ErrNoChange) || errors.Is(err, fs.ErrNotExist):
		log.Info("Schema already up to date")
		return nil
	case errors.As(err, &short):
		log.WithField("missing_steps", short.Short).Info("Fewer migrations than requested were available")
	case err != nil:
		return fmt.Errorf("migrate %s: %w", action, err)
	}

	status, err := r.Status()
	if err != nil {
		log.WithError(err).Warn("Migrations applied but the version could not be read")
		return nil
	}
	log.WithField("schema", status.String()).Info("Migrations applied")
	return nil
}

// Close releases the source and database handles.
func (r *MigrationRunner) Close() error {
	sourceErr, dbErr := r.m.Close()
	return errors.Join(sourceErr, dbErr)
}
