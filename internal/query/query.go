package query

import (
	"context"
	"database/sql"
	"time"
)

const (
	DialectPostgres = "postgresql"
	DialectDuckDB   = "duckdb"
)

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

type Engine interface {
	Execute(ctx context.Context, db *sql.DB, request Request) (Result, error)
}

// Handle is a live connection to a target database, scoped to one generation.
type Handle struct {
	DB      *sql.DB
	Dialect string
}

func NewHandle(db *sql.DB, dialect string) *Handle {
	return &Handle{DB: db, Dialect: dialect}
}

func (h *Handle) Close() error {
	if h == nil || h.DB == nil {
		return nil
	}
	return h.DB.Close()
}
