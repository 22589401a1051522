// Package bootstrap prepares process-wide infrastructure: logging, the database and its schema.
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/issuebot/core/config"
	coredatabase "github.com/m3rciful/issuebot/core/database"
	"github.com/m3rciful/issuebot/core/logger"
)

// Options select the configuration; the func fields replace the real steps in tests.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result holds what Run opened. The caller owns DB.
type Result struct {
	DB *sqlx.DB
}

// Run initializes logging, connects and migrates, in that order.
// The database is closed again when migrations fail.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	if opts.LoggerInit == nil {
		opts.LoggerInit = logger.InitLogger
	}
	if opts.Connect == nil {
		opts.Connect = coredatabase.Connect
	}
	if opts.Migrate == nil {
		opts.Migrate = coredatabase.RunMigrations
	}

	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger: %w", err)
	}
	db, err := opts.Connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database: %w", err)
	}
	if err := opts.Migrate(opts.Database); err != nil {
		return nil, errors.Join(fmt.Errorf("bootstrap: migrations: %w", err), db.Close())
	}
	return &Result{DB: db}, nil
}
