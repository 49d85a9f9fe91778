package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const MemoryPath = ":memory:"

// OpenSQLite opens a file-backed or in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*Service, error) {
	if path == "" {
		path = MemoryPath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// every pooled connection to :memory: would see its own empty database
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	logger.Info("SQLite opened", zap.String("path", path))

	return &Service{db: db, dialect: DialectSQLite, logger: logger}, nil
}
