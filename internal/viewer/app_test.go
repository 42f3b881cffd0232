package viewer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"meshmap/internal/geomath"
	"meshmap/internal/mapview"
	"meshmap/internal/topology"
	"meshmap/internal/views"
)

func sampleFeed() views.Feed {
	snap := topology.NewSnapshot(
		topology.Node{
			Address: "104.61.1.1", Hostname: "gw", HNA: topology.GatewayHNA, Accuracy: 50,
			Position: geomath.LatLng{Lat: 51.48, Lng: 11.97},
			Links:    []topology.Link{{Dest: "104.61.1.2", Type: topology.LinkPrimary, Quality: 0.5}},
		},
		topology.Node{
			Address: "104.61.1.2", Hostname: "relay", HNA: "104.61.1.1", Accuracy: 50,
			Position: geomath.LatLng{Lat: 51.49, Lng: 11.97},
			Links:    []topology.Link{{Dest: "104.61.1.1", Type: topology.LinkPrimary, Quality: 0.5}},
		},
	)
	return views.FeedFunc(func(context.Context) (*topology.Snapshot, error) { return snap, nil })
}

func TestApp_activatesDefaultContextOnReady(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, backend := range Backends {
		t.Run(backend, func(t *testing.T) {
			app, err := New(Config{
				Backend: backend,
				View:    mapview.ViewState{Lat: 51.48, Lng: 11.97, Zoom: 14},
				Feed:    sampleFeed(),
				Log:     zerolog.Nop(),
			})
			require.NoError(t, err)
			defer app.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, app.Settle(ctx))

			var active string
			var live int
			require.NoError(t, app.Do(ctx, func(a *App) {
				active = a.Manager.Active()
				live = len(a.Map.Overlays())
			}))
			require.Equal(t, ContextTopography, active)
			require.Equal(t, 3, live, "two nodes and one deduplicated link")

			body, ct, err := app.Render(ctx)
			require.NoError(t, err)
			require.NotEmpty(t, body)
			require.Equal(t, app.Map.ContentType(), ct)
		})
	}
}

func TestApp_fetchFailureRaisesAlert(t *testing.T) {
	defer goleak.VerifyNone(t)

	app, err := New(Config{
		View: mapview.ViewState{Lat: 51.48, Lng: 11.97, Zoom: 14},
		Feed: views.FeedFunc(func(context.Context) (*topology.Snapshot, error) {
			return nil, errors.New("connection refused")
		}),
		Log: zerolog.Nop(),
	})
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Settle(ctx))

	var alerts []Alert
	require.NoError(t, app.Do(ctx, func(a *App) { alerts = a.Alerts.Recent() }))
	require.Len(t, alerts, 1)
	require.True(t, strings.HasSuffix(alerts[0].Message, "connection refused"))
}

func TestNew_rejectsUnknownBackend(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, err := New(Config{Backend: "canvas", Feed: sampleFeed(), Log: zerolog.Nop()})
	require.ErrorIs(t, err, ErrUnknownBackend)
}
