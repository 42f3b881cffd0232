// Package config loads the meshmap service configuration from a YAML file
// and MESHMAP_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gaissmai/bart"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	LogLevel   string           `yaml:"log_level"`
	Map        MapConfig        `yaml:"map"`
	Feed       FeedConfig       `yaml:"feed"`
	Geocoder   GeocoderConfig   `yaml:"geocoder"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	// Mesh lists the address ranges accepted from the feed. Empty accepts
	// every address.
	Mesh []MeshPrefix `yaml:"mesh"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MapConfig struct {
	Backend        string  `yaml:"backend"`
	Latitude       float64 `yaml:"latitude"`
	Longitude      float64 `yaml:"longitude"`
	Zoomlevel      int     `yaml:"zoomlevel"`
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	DefaultContext string  `yaml:"default_context"`
	Timezone       string  `yaml:"timezone"`
}

type FeedConfig struct {
	URL         string        `yaml:"url"`
	File        string        `yaml:"file"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	Query       string        `yaml:"query"`
	Timeout     time.Duration `yaml:"timeout"`
}

type GeocoderConfig struct {
	URL      string        `yaml:"url"`
	// Locale is appended to every query, e.g. ", Halle, Deutschland".
	Locale   string        `yaml:"locale"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type EnrichmentConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RDNSServer    string        `yaml:"rdns_server"`
	Workers       int           `yaml:"workers"`
	MaxTargets    int           `yaml:"max_targets"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	SNMP          SNMPConfig    `yaml:"snmp"`
}

type SNMPConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Community string        `yaml:"community"`
	Port      int           `yaml:"port"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
}

type MeshPrefix struct {
	Prefix string `yaml:"prefix"`
	Label  string `yaml:"label"`
}

func DefaultConfig() Config {
	c := Config{}
	applyDefaults(&c)
	return c
}

func applyDefaults(c *Config) {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8081"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Map.Backend == "" {
		c.Map.Backend = "wgs84"
	}
	if c.Map.Latitude == 0 && c.Map.Longitude == 0 {
		c.Map.Latitude = 51.47727
		c.Map.Longitude = 11.95667
	}
	if c.Map.Zoomlevel == 0 {
		c.Map.Zoomlevel = 12
	}
	if c.Map.Width <= 0 {
		c.Map.Width = 1024
	}
	if c.Map.Height <= 0 {
		c.Map.Height = 768
	}
	if c.Map.DefaultContext == "" {
		c.Map.DefaultContext = "topo"
	}
	if c.Map.Timezone == "" {
		c.Map.Timezone = "Europe/Berlin"
	}
	if c.Feed.Timeout <= 0 {
		c.Feed.Timeout = 30 * time.Second
	}
	if c.Geocoder.URL == "" {
		c.Geocoder.URL = "https://nominatim.openstreetmap.org"
	}
	if c.Geocoder.Locale == "" {
		c.Geocoder.Locale = ", Halle, Deutschland"
	}
	if c.Geocoder.Timeout <= 0 {
		c.Geocoder.Timeout = 5 * time.Second
	}
	if c.Geocoder.CacheTTL <= 0 {
		c.Geocoder.CacheTTL = time.Hour
	}
	if c.Enrichment.Workers <= 0 {
		c.Enrichment.Workers = 16
	}
	if c.Enrichment.MaxTargets <= 0 {
		c.Enrichment.MaxTargets = 256
	}
	if c.Enrichment.LookupTimeout <= 0 {
		c.Enrichment.LookupTimeout = 2 * time.Second
	}
	if c.Enrichment.SNMP.Community == "" {
		c.Enrichment.SNMP.Community = "public"
	}
	if c.Enrichment.SNMP.Port == 0 {
		c.Enrichment.SNMP.Port = 161
	}
	if c.Enrichment.SNMP.Timeout <= 0 {
		c.Enrichment.SNMP.Timeout = time.Second
	}
}

// Load reads path (if non-empty), applies environment overrides and fills
// defaults. A missing path yields the defaults plus environment.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		// An empty file decodes to io.EOF and means "all defaults".
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&c, os.Getenv); err != nil {
		return Config{}, err
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

func applyEnv(c *Config, getenv func(string) string) error {
	c.HTTP.Addr = envOr(getenv, "MESHMAP_HTTP_ADDR", c.HTTP.Addr)
	c.LogLevel = envOr(getenv, "MESHMAP_LOG_LEVEL", c.LogLevel)
	c.Map.Backend = envOr(getenv, "MESHMAP_BACKEND", c.Map.Backend)
	c.Map.DefaultContext = envOr(getenv, "MESHMAP_DEFAULT_CONTEXT", c.Map.DefaultContext)
	c.Feed.URL = envOr(getenv, "MESHMAP_FEED_URL", c.Feed.URL)
	c.Feed.File = envOr(getenv, "MESHMAP_FEED_FILE", c.Feed.File)
	c.Feed.PostgresDSN = envOr(getenv, "MESHMAP_DATABASE_URL", c.Feed.PostgresDSN)
	c.Geocoder.URL = envOr(getenv, "MESHMAP_GEOCODER_URL", c.Geocoder.URL)
	c.Enrichment.RDNSServer = envOr(getenv, "MESHMAP_RDNS_SERVER", c.Enrichment.RDNSServer)

	if v := envOr(getenv, "MESHMAP_FEED_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MESHMAP_FEED_TIMEOUT: %w", err)
		}
		c.Feed.Timeout = d
	}
	if v := envOr(getenv, "MESHMAP_ENRICHMENT", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MESHMAP_ENRICHMENT: %w", err)
		}
		c.Enrichment.Enabled = b
	}
	return nil
}

// FeedKind reports which feed source is configured.
func (c Config) FeedKind() string {
	switch {
	case c.Feed.PostgresDSN != "":
		return "postgres"
	case c.Feed.URL != "":
		return "http"
	case c.Feed.File != "":
		return "file"
	default:
		return ""
	}
}

func (c Config) Validate() error {
	n := 0
	for _, s := range []string{c.Feed.URL, c.Feed.File, c.Feed.PostgresDSN} {
		if s != "" {
			n++
		}
	}
	if n > 1 {
		return errors.New("config: feed: url, file and postgres_dsn are mutually exclusive")
	}
	if c.Map.Latitude < -90 || c.Map.Latitude > 90 || c.Map.Longitude < -180 || c.Map.Longitude > 180 {
		return fmt.Errorf("config: map: center %v,%v out of range", c.Map.Latitude, c.Map.Longitude)
	}
	if c.Map.Zoomlevel < 0 || c.Map.Zoomlevel > 22 {
		return fmt.Errorf("config: map: zoomlevel %d out of range", c.Map.Zoomlevel)
	}
	if _, err := c.PrefixTable(); err != nil {
		return err
	}
	return nil
}

// PrefixTable builds the mesh range lookup table, or nil when no ranges
// are configured.
func (c Config) PrefixTable() (*bart.Table[string], error) {
	if len(c.Mesh) == 0 {
		return nil, nil
	}
	t := new(bart.Table[string])
	for _, m := range c.Mesh {
		p, err := netip.ParsePrefix(strings.TrimSpace(m.Prefix))
		if err != nil {
			return nil, fmt.Errorf("config: mesh prefix %q: %w", m.Prefix, err)
		}
		label := m.Label
		if label == "" {
			label = p.String()
		}
		t.Insert(p.Masked(), label)
	}
	return t, nil
}

// Location resolves the display timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Map.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
