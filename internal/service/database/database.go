package database

import (
	"context"
	"database/sql"
	"strconv"

	"go.uber.org/zap"
)

// Dialect selects placeholder syntax and DDL variants.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Service owns a *sql.DB together with the dialect it speaks.
type Service struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

func (s *Service) DB() *sql.DB {
	return s.db
}

func (s *Service) Dialect() Dialect {
	return s.dialect
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Info("Closing database", zap.String("dialect", string(s.dialect)))
	return s.db.Close()
}
