package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrBinlogDisabled is returned when the server has no binary log.
var ErrBinlogDisabled = errors.New("binary logging is disabled on the server")

const logBinBasenameQuery = "SHOW VARIABLES LIKE 'log_bin_basename'"

// Open connects to MySQL with a bounded dial timeout.
func Open(dsn string, timeout time.Duration) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	return db, nil
}

// LogBinBasename returns the server's log_bin_basename, the path prefix of
// its binary log files.
func LogBinBasename(ctx context.Context, db *sql.DB) (string, error) {
	var name string
	var value sql.NullString
	err := db.QueryRowContext(ctx, logBinBasenameQuery).Scan(&name, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrBinlogDisabled
	}
	if err != nil {
		return "", fmt.Errorf("query log_bin_basename: %w", err)
	}
	if !value.Valid || value.String == "" {
		return "", ErrBinlogDisabled
	}
	return value.String, nil
}

// DiscoverLogBin opens dsn and looks up log_bin_basename.
func DiscoverLogBin(ctx context.Context, dsn string, timeout time.Duration) (string, error) {
	db, err := Open(dsn, timeout)
	if err != nil {
		return "", err
	}
	defer db.Close()
	return LogBinBasename(ctx, db)
}
