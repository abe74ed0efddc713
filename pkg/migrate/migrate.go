package migrate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/samber/lo"

	"github.com/TechXTT/tormtx/pkg/runtime"
	"github.com/TechXTT/tormtx/pkg/torm"
)

// Migration holds one versioned migration
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Status reports whether a migration has been applied.
type Status struct {
	Migration
	Applied bool
}

// Manager applies and rolls back migrations. Every migration runs in its
// own REQUIRED scope, so a failing script leaves no partial version.
type Manager struct {
	db            *torm.DB
	migrationsDir string
	migrations    []Migration
	out           io.Writer
	placeholder   string
}

// Option configures a Manager.
type Option func(*Manager)

// WithOutput sets where progress lines are written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(m *Manager) { m.out = w }
}

// NewManager loads migration files from the specified directory
func NewManager(db *torm.DB, migrationsDir string, opts ...Option) (*Manager, error) {
	driver, _, err := runtime.ParseLink(db.Link())
	if err != nil {
		return nil, err
	}
	m := &Manager{db: db, migrationsDir: migrationsDir, out: os.Stdout, placeholder: "?"}
	if driver == "postgres" || driver == "pgx" {
		m.placeholder = "$1"
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadMigrations(); err != nil {
		return nil, err
	}
	return m, nil
}

// Migrations returns the loaded migrations ordered by version.
func (m *Manager) Migrations() []Migration {
	return m.migrations
}

var migrationFile = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// loadMigrations reads .up.sql/.down.sql files and organizes them by version
func (m *Manager) loadMigrations() error {
	entries, err := os.ReadDir(m.migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	tmp := map[int]*Migration{}
	for _, fi := range entries {
		if fi.IsDir() {
			continue
		}
		matches := migrationFile.FindStringSubmatch(fi.Name())
		if len(matches) != 4 {
			continue
		}
		ver, err := strconv.Atoi(matches[1])
		if err != nil {
			return fmt.Errorf("parse version of %s: %w", fi.Name(), err)
		}
		data, err := os.ReadFile(filepath.Join(m.migrationsDir, fi.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", fi.Name(), err)
		}
		mig, exists := tmp[ver]
		if !exists {
			mig = &Migration{Version: ver, Name: matches[2]}
			tmp[ver] = mig
		}
		if matches[3] == "up" {
			mig.UpSQL = string(data)
		} else {
			mig.DownSQL = string(data)
		}
	}
	versions := lo.Keys(tmp)
	sort.Ints(versions)
	m.migrations = lo.Map(versions, func(v int, _ int) Migration { return *tmp[v] })
	return nil
}

const versionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (version INT PRIMARY KEY);`

// ensureVersionTable creates schema_migrations if missing
func ensureVersionTable(ctx context.Context, s *torm.Session) error {
	if _, err := s.Exec(ctx, versionTable); err != nil {
		return fmt.Errorf("ensure version table: %w", err)
	}
	return nil
}

// currentVersion returns the highest applied migration version
func currentVersion(ctx context.Context, s *torm.Session) (int, error) {
	return torm.Query(ctx, s, torm.Scalar[int](), `SELECT MAX(version) FROM schema_migrations;`)
}

// Up applies all pending migrations and returns how many were applied.
func (m *Manager) Up(ctx context.Context) (int, error) {
	s, err := m.db.Session(ctx)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	if err := ensureVersionTable(ctx, s); err != nil {
		return 0, err
	}
	current, err := currentVersion(ctx, s)
	if err != nil {
		return 0, err
	}

	pending := lo.Filter(m.migrations, func(mig Migration, _ int) bool { return mig.Version > current })
	for _, mig := range pending {
		fmt.Fprintf(m.out, "Applying %04d_%s.up.sql\n", mig.Version, mig.Name)
		err := torm.RunInScope(ctx, s, torm.Required, func(ctx context.Context, s *torm.Session) error {
			if _, err := s.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := s.Exec(ctx, "INSERT INTO schema_migrations(version) VALUES("+m.placeholder+");", mig.Version)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("apply up %d: %w", mig.Version, err)
		}
	}
	return len(pending), nil
}

// Down rolls back the latest migration
func (m *Manager) Down(ctx context.Context) error {
	s, err := m.db.Session(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := ensureVersionTable(ctx, s); err != nil {
		return err
	}
	current, err := currentVersion(ctx, s)
	if err != nil {
		return err
	}
	if current == 0 {
		fmt.Fprintln(m.out, "No migrations to roll back.")
		return nil
	}
	toRoll, ok := lo.Find(m.migrations, func(mig Migration) bool { return mig.Version == current })
	if !ok {
		return fmt.Errorf("migration not found for version %d", current)
	}
	fmt.Fprintf(m.out, "Rolling back %04d_%s.down.sql\n", toRoll.Version, toRoll.Name)
	err = torm.RunInScope(ctx, s, torm.Required, func(ctx context.Context, s *torm.Session) error {
		if _, err := s.Exec(ctx, toRoll.DownSQL); err != nil {
			return err
		}
		_, err := s.Exec(ctx, "DELETE FROM schema_migrations WHERE version = "+m.placeholder+";", toRoll.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("apply down %d: %w", toRoll.Version, err)
	}
	return nil
}

// Status lists every known migration and whether it has been applied.
func (m *Manager) Status(ctx context.Context) ([]Status, error) {
	s, err := m.db.Session(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if err := ensureVersionTable(ctx, s); err != nil {
		return nil, err
	}
	applied, err := torm.Query(ctx, s, torm.Collection[int](), `SELECT version FROM schema_migrations ORDER BY version;`)
	if err != nil {
		return nil, err
	}
	return lo.Map(m.migrations, func(mig Migration, _ int) Status {
		return Status{Migration: mig, Applied: lo.Contains(applied, mig.Version)}
	}), nil
}
