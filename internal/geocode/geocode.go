// Package geocode resolves free-form addresses through a Nominatim-style
// search endpoint. Results, including misses, are cached.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"

	"meshmap/internal/geomath"
	"meshmap/internal/metrics"
)

// ErrNotFound is returned when the search yields no usable result.
var ErrNotFound = errors.New("address not found")

type entry struct {
	pos   geomath.LatLng
	found bool
}

// Client implements mapview.Geocoder.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *ttlcache.Cache[string, entry]
	metrics *metrics.Metrics
	log     zerolog.Logger
	// UserAgent identifies the application to the search service.
	UserAgent string
}

type Options struct {
	URL      string
	Timeout  time.Duration
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	c := &Client{
		baseURL: strings.TrimRight(opts.URL, "/"),
		http:    &http.Client{Timeout: opts.Timeout},
		cache: ttlcache.New[string, entry](
			ttlcache.WithTTL[string, entry](opts.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, entry](),
		),
		metrics:   opts.Metrics,
		log:       opts.Log.With().Str("component", "geocode").Logger(),
		UserAgent: "meshmap",
	}
	go c.cache.Start()
	return c
}

// Close stops the cache janitor.
func (c *Client) Close() {
	c.cache.Stop()
}

type result struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func cacheKey(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func (c *Client) Geocode(ctx context.Context, query string) (geomath.LatLng, error) {
	key := cacheKey(query)
	if key == "" {
		return geomath.LatLng{}, ErrNotFound
	}
	if item := c.cache.Get(key); item != nil {
		c.metrics.IncGeocode("cached")
		if e := item.Value(); e.found {
			return e.pos, nil
		}
		return geomath.LatLng{}, ErrNotFound
	}

	pos, err := c.search(ctx, query)
	switch {
	case err == nil:
		c.cache.Set(key, entry{pos: pos, found: true}, ttlcache.DefaultTTL)
		c.metrics.IncGeocode("hit")
	case errors.Is(err, ErrNotFound):
		c.cache.Set(key, entry{}, ttlcache.DefaultTTL)
		c.metrics.IncGeocode("miss")
	default:
		c.metrics.IncGeocode("error")
		c.log.Warn().Err(err).Str("query", query).Msg("geocoder request failed")
	}
	return pos, err
}

func (c *Client) search(ctx context.Context, query string) (geomath.LatLng, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "json")
	v.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return geomath.LatLng{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return geomath.LatLng{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return geomath.LatLng{}, fmt.Errorf("geocoder: %s", resp.Status)
	}

	var results []result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&results); err != nil {
		return geomath.LatLng{}, fmt.Errorf("geocoder: decode: %w", err)
	}
	if len(results) == 0 {
		return geomath.LatLng{}, ErrNotFound
	}
	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lng, err2 := strconv.ParseFloat(results[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return geomath.LatLng{}, ErrNotFound
	}
	return geomath.LatLng{Lat: lat, Lng: lng}, nil
}
