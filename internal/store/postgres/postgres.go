// Package postgres implements the store interfaces over PostgreSQL using
// the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aweb-dev/aweb/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and
// verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Projects() store.Projects         { return &projects{db: s.db} }
func (s *pgStore) Agents() store.Agents             { return &agents{db: s.db} }
func (s *pgStore) APIKeys() store.APIKeys           { return &apiKeys{db: s.db} }
func (s *pgStore) Contacts() store.Contacts         { return &contacts{db: s.db} }
func (s *pgStore) Mail() store.Mail                 { return &mail{db: s.db} }
func (s *pgStore) Chat() store.Chat                 { return &chat{db: s.db} }
func (s *pgStore) Reservations() store.Reservations { return &reservations{db: s.db} }

func (s *pgStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Bootstrap opens the database and applies the schema. Safe to run on every
// startup; all DDL is IF NOT EXISTS.
func Bootstrap(ctx context.Context, dsn string) error {
	if dsn == "" {
		return nil
	}
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return EnsureSchema(ctx, db)
}
