// Package pgx implements store.VectorStore and store.GraphStore on
// PostgreSQL with pgvector for similarity search and tsvector full-text
// ranking for the lexical leg.
package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store holds both sides of the persistence layer over one connection
// pool. Search only sees chunks of documents whose processing status is
// completed, so partially ingested documents never leak into results.
type Store struct {
	conn      querier
	dimension int
}

// New wraps an existing connection. The dimension is the embedding width
// the schema was provisioned with; chunks with any other width are
// rejected as a configuration error.
func New(conn querier, dimension int) *Store {
	return &Store{conn: conn, dimension: dimension}
}

// Connect opens a pgx pool with pgvector types registered on every
// connection.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgxv5.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

func newID() string {
	id, err := gonanoid.New()
	if err != nil {
		panic(err)
	}
	return id
}
