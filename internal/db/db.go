// Package db wraps the PostgreSQL pool the topology feed reads from.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoPayload is returned when the payload query yields no row.
var ErrNoPayload = errors.New("payload query returned no rows")

type Pool struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, databaseURL string) (*Pool, error) {
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	// Verify connectivity early.
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}

	return &Pool{pool: p}, nil
}

func (p *Pool) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	return p.pool.Ping(ctx)
}

// Payload runs query and returns the first column of the first row. json,
// jsonb, bytea and text columns all scan into raw bytes.
func (p *Pool) Payload(ctx context.Context, query string, args ...any) ([]byte, error) {
	if p == nil || p.pool == nil {
		return nil, errors.New("database pool not configured")
	}
	var raw []byte
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPayload
		}
		return nil, err
	}
	return raw, nil
}
