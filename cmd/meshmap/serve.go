package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"meshmap/internal/config"
	"meshmap/internal/db"
	"meshmap/internal/enrichment"
	"meshmap/internal/enrichment/rdns"
	"meshmap/internal/enrichment/snmp"
	"meshmap/internal/feed"
	"meshmap/internal/geocode"
	"meshmap/internal/httpapi"
	"meshmap/internal/mapview"
	"meshmap/internal/metrics"
	"meshmap/internal/topology"
	"meshmap/internal/viewer"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr, backend string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the map and its HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if backend != "" {
				cfg.Map.Backend = backend
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&backend, "backend", "", "map backend: wgs84, webmercator or shapelayer")
	return cmd
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}

func parseOptions(cfg config.Config) (topology.ParseOptions, error) {
	tbl, err := cfg.PrefixTable()
	if err != nil {
		return topology.ParseOptions{}, err
	}
	return topology.ParseOptions{Prefixes: tbl}, nil
}

// buildFeed wires the configured source with enrichment and metrics. The
// returned pool is nil unless the feed reads from PostgreSQL.
func buildFeed(ctx context.Context, cfg config.Config, log zerolog.Logger, m *metrics.Metrics) (feed.Source, *db.Pool, error) {
	opts, err := parseOptions(cfg)
	if err != nil {
		return nil, nil, err
	}

	var (
		src  feed.Source
		pool *db.Pool
	)
	switch cfg.FeedKind() {
	case "postgres":
		p, err := db.Open(ctx, cfg.Feed.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		pool = p
		src = feed.PostgresSource{DB: p, Query: cfg.Feed.Query, Parse: opts}
	case "http":
		src = feed.NewHTTPSource(cfg.Feed.URL, cfg.Feed.Timeout, opts)
	case "file":
		src = feed.FileSource{Path: cfg.Feed.File, Parse: opts}
	default:
		return nil, nil, errors.New("no topology feed configured: set feed.url, feed.file or feed.postgres_dsn")
	}

	obs := feed.Observed{
		Source:  src,
		Metrics: m,
		Log:     log.With().Str("component", "feed").Str("feed", cfg.FeedKind()).Logger(),
		Timeout: cfg.Feed.Timeout,
	}
	if p := buildEnrichment(cfg, log); p != nil {
		obs.Enricher = p
	}
	return obs, pool, nil
}

func buildEnrichment(cfg config.Config, log zerolog.Logger) *enrichment.Pipeline {
	ec := cfg.Enrichment
	if !ec.Enabled {
		return nil
	}
	p := &enrichment.Pipeline{
		Names:         &rdns.Resolver{Server: ec.RDNSServer, Timeout: ec.LookupTimeout},
		Workers:       ec.Workers,
		MaxTargets:    ec.MaxTargets,
		LookupTimeout: ec.LookupTimeout,
		Log:           log.With().Str("component", "enrichment").Logger(),
	}
	if ec.SNMP.Enabled {
		p.System = snmp.NewClient(snmp.Config{
			Community: ec.SNMP.Community,
			Port:      uint16(ec.SNMP.Port),
			Timeout:   ec.SNMP.Timeout,
			Retries:   ec.SNMP.Retries,
		})
	}
	return p
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := httpapi.NewLogger(cfg.LogLevel)
	m := metrics.New()

	src, pool, err := buildFeed(ctx, cfg, logger, m)
	if err != nil {
		logger.Error().Err(err).Msg("feed setup failed")
		return err
	}
	var pinger httpapi.Pinger
	if pool != nil {
		defer pool.Close()
		pinger = pool
	}

	gc := geocode.New(geocode.Options{
		URL:      cfg.Geocoder.URL,
		Timeout:  cfg.Geocoder.Timeout,
		CacheTTL: cfg.Geocoder.CacheTTL,
		Metrics:  m,
		Log:      logger,
	})
	defer gc.Close()

	app, err := viewer.New(viewer.Config{
		Backend: cfg.Map.Backend,
		View: mapview.ViewState{
			Lat:  cfg.Map.Latitude,
			Lng:  cfg.Map.Longitude,
			Zoom: cfg.Map.Zoomlevel,
		},
		Width:          cfg.Map.Width,
		Height:         cfg.Map.Height,
		Feed:           src,
		Geocoder:       gc,
		GeocoderLocale: cfg.Geocoder.Locale,
		DefaultContext: cfg.Map.DefaultContext,
		Location:       cfg.Location(),
		Metrics:        m,
		Log:            logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("map setup failed")
		return err
	}
	defer app.Close()

	h := httpapi.NewHandler(logger, app, m, pinger)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Str("backend", app.Map.Name()).Msg("meshmap listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server error")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
	return nil
}
