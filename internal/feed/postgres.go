package feed

import (
	"context"

	"meshmap/internal/topology"
)

// DefaultQuery reads the newest stored payload.
const DefaultQuery = `SELECT payload FROM topology_snapshots ORDER BY captured_at DESC LIMIT 1`

// PayloadQuerier is satisfied by *db.Pool.
type PayloadQuerier interface {
	Payload(ctx context.Context, query string, args ...any) ([]byte, error)
}

// PostgresSource reads the payload from a single-column query.
type PostgresSource struct {
	DB    PayloadQuerier
	Query string
	Parse topology.ParseOptions
}

func (s PostgresSource) Fetch(ctx context.Context) (*topology.Snapshot, error) {
	q := s.Query
	if q == "" {
		q = DefaultQuery
	}
	data, err := s.DB.Payload(ctx, q)
	if err != nil {
		return nil, fetchErr("postgres: %v", err)
	}
	return parse(data, s.Parse)
}
