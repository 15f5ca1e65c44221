package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dnldd/screener/refresh"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createPassTableSQL = "CREATE TABLE IF NOT EXISTS pass (id TEXT PRIMARY KEY, started INTEGER, finished INTEGER, attempted INTEGER, updated INTEGER, skipped INTEGER, failed INTEGER, static INTEGER)"
	persistPassSQL     = "INSERT OR IGNORE INTO pass(id, started, finished, attempted, updated, skipped, failed, static) VALUES(?,?,?,?,?,?,?,?)"

	// defaultTimeout is the default database request timeout.
	defaultTimeout = time.Second * 5
)

// PassStorer defines the requirements for storing refresh pass summaries.
type PassStorer interface {
	// PersistPass stores the provided pass summary to the database.
	PersistPass(ctx context.Context, summary *refresh.PassSummary) error
}

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("database endpoint cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Database represents the database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// Ensure the database implements the PassStorer interface.
var _ PassStorer = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	httpc := &http.Client{Timeout: defaultTimeout}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createPassTableSQL},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("creating pass table: %d -> %s", idx, errStr)
	}

	return nil
}

// boolToInt encodes the provided bool as a sqlite integer.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// PersistPass stores the provided pass summary to the database.
func (db *Database) PersistPass(ctx context.Context, summary *refresh.PassSummary) error {
	if summary == nil {
		return fmt.Errorf("pass summary cannot be nil")
	}

	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: persistPassSQL,
			PositionalParams: []any{summary.ID, summary.Started.UnixMilli(), summary.Finished.UnixMilli(),
				summary.Attempted, summary.Updated, summary.Skipped, summary.Failed, boolToInt(summary.Static)},
		},
	}, &rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("persisting pass %s: %d -> %s", summary.ID, idx, errStr)
	}

	db.cfg.Logger.Debug().Msgf("persisted pass %s", summary.ID)

	return nil
}
