package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Config struct {
	Driver       string `yaml:"SQL_DRIVER" env:"SQL_DRIVER" env-default:"sqlite"`
	DSN          string `yaml:"SQL_DSN" env:"SQL_DSN" env-default:"file:polls.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"`
	MaxOpenConns int    `yaml:"SQL_MAX_OPEN_CONNS" env:"SQL_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns int    `yaml:"SQL_MAX_IDLE_CONNS" env:"SQL_MAX_IDLE_CONNS" env-default:"5"`
}

func New(ctx context.Context, config Config) (*sql.DB, error) {
	switch config.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return nil, fmt.Errorf("sqldb: unsupported driver %q", config.Driver)
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqldb: failed to open %s: %w", config.Driver, err)
	}

	// sqlite allows a single writer; one connection keeps transactions
	// queued in Go instead of failing with SQLITE_BUSY.
	if config.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqldb: failed to ping %s: %w", config.Driver, err)
	}
	return db, nil
}
