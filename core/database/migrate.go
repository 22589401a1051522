package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/issuebot/core/logger"
)

const previewFiles = 6

// RunMigrations brings the schema (tracker tables plus executing_commands) up to date.
func RunMigrations(cfg Config) error {
	ctx := context.Background()
	fail := func(stage string, err error) error {
		logger.Error(ctx, logger.CompMigrate, "db.migrate",
			slog.String("status", "fail"),
			slog.String("cause", stage),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("migrate %s: %w", stage, err)
	}

	dsn := cfg.DSN()
	if err := waitReady(dsn, 30*time.Second); err != nil {
		return fail("wait", err)
	}
	dir, err := resolveMigrationsDir(cfg.MigrationsDir)
	if err != nil {
		return fail("resolve", err)
	}
	set := scanMigrations(dir)
	logger.Debug(ctx, logger.CompMigrate, "migrate.resolve",
		append([]slog.Attr{slog.String("path", dir)}, set.attrs()...)...)

	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return fail("init", err)
	}
	defer m.Close()

	from, _, _ := m.Version()
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fail("apply", err)
	}
	to, _, _ := m.Version()

	applied := set.between(uint64(from), uint64(to))
	if len(applied) > 0 {
		logger.Debug(ctx, logger.CompMigrate, "migrate.apply", applied.attrs()...)
	}
	logger.Info(ctx, logger.CompMigrate, "migrate.summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

func resolveMigrationsDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "migrations"
	}
	return filepath.Abs(dir)
}

type migrationFile struct {
	name    string
	version uint64
}

type migrationSet []migrationFile

// scanMigrations lists the *.up.sql files of dir ordered by name.
// An unreadable directory yields an empty set and golang-migrate reports the real error.
func scanMigrations(dir string) migrationSet {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var set migrationSet
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(e.Name(), "_")
		v, _ := strconv.ParseUint(prefix, 10, 64)
		set = append(set, migrationFile{name: e.Name(), version: v})
	}
	sort.Slice(set, func(i, j int) bool { return set[i].name < set[j].name })
	return set
}

// between keeps files with from < version <= to.
func (s migrationSet) between(from, to uint64) migrationSet {
	var out migrationSet
	for _, f := range s {
		if f.version > from && f.version <= to {
			out = append(out, f)
		}
	}
	return out
}

func (s migrationSet) names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.name
	}
	return names
}

func (s migrationSet) attrs() []slog.Attr {
	preview, cut := logger.SummarizeStrings(s.names(), previewFiles)
	attrs := []slog.Attr{slog.Int("files_total", len(s)), slog.String("files_preview", preview)}
	if cut {
		attrs = append(attrs, slog.Bool("files_truncated", true))
	}
	return attrs
}
