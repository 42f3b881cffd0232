// Package feed delivers topology snapshots from an HTTP endpoint, a local
// file or a PostgreSQL query.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"meshmap/internal/metrics"
	"meshmap/internal/topology"
)

// ErrFetch wraps every failure to obtain or parse a payload.
var ErrFetch = errors.New("topology fetch failed")

// Source produces a fresh snapshot per call.
type Source interface {
	Fetch(ctx context.Context) (*topology.Snapshot, error)
}

func fetchErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFetch, fmt.Sprintf(format, args...))
}

func parse(data []byte, opts topology.ParseOptions) (*topology.Snapshot, error) {
	snap, err := topology.ParsePayload(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return snap, nil
}

// Static always returns the same snapshot.
type Static struct {
	Snapshot *topology.Snapshot
}

func (s Static) Fetch(context.Context) (*topology.Snapshot, error) {
	if s.Snapshot == nil {
		return nil, fetchErr("no snapshot loaded")
	}
	return s.Snapshot, nil
}

// Enricher fills in node metadata after a fetch.
type Enricher interface {
	Enrich(ctx context.Context, snap *topology.Snapshot) *topology.Snapshot
}

// Observed decorates a source with logging, metrics and optional
// enrichment.
type Observed struct {
	Source   Source
	Enricher Enricher
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	// Timeout bounds one fetch including enrichment. Zero means none.
	Timeout time.Duration
}

func (o Observed) Fetch(ctx context.Context) (*topology.Snapshot, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	start := time.Now()
	snap, err := o.Source.Fetch(ctx)
	if err != nil {
		o.Metrics.ObserveFetch(time.Since(start), err)
		o.Log.Error().Err(err).Dur("duration", time.Since(start)).Msg("topology fetch failed")
		return nil, err
	}
	if o.Enricher != nil {
		snap = o.Enricher.Enrich(ctx, snap)
	}
	o.Metrics.ObserveFetch(time.Since(start), nil)
	o.Log.Info().
		Int("nodes", snap.Len()).
		Int("warnings", len(snap.Warnings)).
		Dur("duration", time.Since(start)).
		Msg("topology fetched")
	for _, w := range snap.Warnings {
		o.Log.Debug().Str("address", w.Address).Str("link", w.Link).Str("reason", w.Reason).Msg("payload record rejected")
	}
	return snap, nil
}
