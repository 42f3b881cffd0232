package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"meshmap/internal/feed"
	"meshmap/internal/httpapi"
	"meshmap/internal/mapview"
	"meshmap/internal/viewer"
)

type renderFlags struct {
	backend string
	context string
	out     string
	width   int
	height  int
	timeout time.Duration
}

func newRenderCmd(flags *rootFlags) *cobra.Command {
	rf := renderFlags{}
	cmd := &cobra.Command{
		Use:   "render <payload>",
		Short: "Render one context of a payload file with one backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd, flags, rf, args[0])
		},
	}
	cmd.Flags().StringVar(&rf.backend, "backend", "", "map backend: wgs84 (GeoJSON), webmercator (PNG) or shapelayer (KML)")
	cmd.Flags().StringVar(&rf.context, "context", viewer.ContextTopography, "context to render: topo or hna")
	cmd.Flags().StringVarP(&rf.out, "out", "o", "-", "output file, - for stdout")
	cmd.Flags().IntVar(&rf.width, "width", 0, "raster width in pixels")
	cmd.Flags().IntVar(&rf.height, "height", 0, "raster height in pixels")
	cmd.Flags().DurationVar(&rf.timeout, "timeout", 30*time.Second, "give up when the map has not settled by then")
	return cmd
}

func render(cmd *cobra.Command, flags *rootFlags, rf renderFlags, path string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if rf.backend != "" {
		cfg.Map.Backend = rf.backend
	}
	if rf.width > 0 {
		cfg.Map.Width = rf.width
	}
	if rf.height > 0 {
		cfg.Map.Height = rf.height
	}
	logger := httpapi.NewLoggerTo(cmd.ErrOrStderr(), cfg.LogLevel)

	opts, err := parseOptions(cfg)
	if err != nil {
		return err
	}
	snap, err := readPayload(cmd.InOrStdin(), cmd.ErrOrStderr(), path, opts)
	if err != nil {
		return err
	}

	app, err := viewer.New(viewer.Config{
		Backend: cfg.Map.Backend,
		View: mapview.ViewState{
			Lat:  cfg.Map.Latitude,
			Lng:  cfg.Map.Longitude,
			Zoom: cfg.Map.Zoomlevel,
		},
		Width:          cfg.Map.Width,
		Height:         cfg.Map.Height,
		Feed:           feed.Static{Snapshot: snap},
		DefaultContext: rf.context,
		Location:       cfg.Location(),
		Log:            logger,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), rf.timeout)
	defer cancel()
	if err := app.Settle(ctx); err != nil {
		return fmt.Errorf("waiting for the map: %w", err)
	}
	var alerts []viewer.Alert
	if err := app.Do(ctx, func(a *viewer.App) { alerts = a.Alerts.Recent() }); err != nil {
		return err
	}
	if len(alerts) > 0 {
		return fmt.Errorf("render: %s", alerts[len(alerts)-1].Message)
	}

	body, contentType, err := app.Render(ctx)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	logger.Info().Str("backend", app.Map.Name()).Str("content_type", contentType).Int("bytes", len(body)).Msg("rendered")

	if rf.out == "-" {
		_, err = cmd.OutOrStdout().Write(body)
		return err
	}
	return os.WriteFile(rf.out, body, 0o644)
}
