// Package views holds the concrete view modes: the topography map and the
// gateway coverage map.
package views

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"meshmap/internal/metrics"
	"meshmap/internal/topology"
	"meshmap/internal/viewctx"
)

// Feed delivers topology snapshots.
type Feed interface {
	Fetch(ctx context.Context) (*topology.Snapshot, error)
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context) (*topology.Snapshot, error)

func (f FeedFunc) Fetch(ctx context.Context) (*topology.Snapshot, error) { return f(ctx) }

// Options are shared by both views.
type Options struct {
	Env  viewctx.Env
	Feed Feed
	// Ctx bounds fetches and geocoder lookups. Defaults to Background.
	Ctx context.Context
	// Location formats clock times in widgets. Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
	Metrics  *metrics.Metrics
}

func (o *Options) defaults() {
	if o.Ctx == nil {
		o.Ctx = context.Background()
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

const fetchFailed = "Achtung! Irgendwas ist leider schief gelaufen: "

func describeFetchError(err error) string { return fetchFailed + err.Error() }

func clock(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	return fmt.Sprintf("%d:%02d Uhr", t.Hour(), t.Minute())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// round2 rounds to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// percent renders a quality in (0,1] as a percentage with two decimals.
func percent(q float64) string {
	return formatFloat(math.Round(q*10000)/100) + "%"
}
