package utils

import (
	"context"
	"docgate/models"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const IssuanceSchema = `CREATE TABLE IF NOT EXISTS magic_link_issuances (
	id         UUID PRIMARY KEY,
	email      TEXT NOT NULL,
	source     TEXT NOT NULL,
	ok         BOOLEAN NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

func OpenDB(dsn string) (*pgxpool.Pool, error) {
	// Parse the connection string into a pgxpool.Config
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnIdleTime = 20 * time.Second
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test the connection
	if err = pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func EnsureIssuanceSchema(ctx context.Context, db *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := db.Exec(ctx, IssuanceSchema); err != nil {
		return fmt.Errorf("creating issuance table: %w", err)
	}
	return nil
}

// RecordIssuance appends one audit row. A nil pool disables the audit trail.
func RecordIssuance(ctx context.Context, db *pgxpool.Pool, issuance models.Issuance) error {
	if db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if issuance.ID == "" {
		issuance.ID = uuid.NewString()
	}
	stmt := "INSERT INTO magic_link_issuances (id, email, source, ok, error) VALUES ($1, $2, $3, $4, $5);"
	_, err := db.Exec(ctx, stmt, issuance.ID, issuance.Email, issuance.Source, issuance.OK, issuance.Error)
	if err != nil {
		return fmt.Errorf("recording issuance: %w", err)
	}
	return nil
}
