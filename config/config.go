// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the crawler can run locally with no setup at all.
// An optional YAML file (CONFIG_PATH) supplies values for anything the environment leaves unset.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/onnwee/flvwatch/bilibili"
)

type Config struct {
	// Upstream
	ListURL        string
	RoomPageBase   string
	RequestTimeout time.Duration
	RequestDelay   time.Duration

	// Discovery
	DiscoveryPages    int
	DiscoveryPageSize int
	StrictPages       bool

	// Probe
	ManifestMarker string
	FlvMarker      string

	// Storage
	StorePath string

	// Schedule
	CrawlInterval time.Duration
	CrawlOnStart  bool

	// HTTP
	HTTPAddr   string
	AdminToken string

	// Database mirror (disabled when empty)
	DBDsn string
	// MigrationsPath is a golang-migrate source URL; empty uses the embedded migrations.
	MigrationsPath string

	// Publishing
	PublishGit     bool
	PublishRepoDir string
	PublishRemote  string
	PublishBranch  string
	PublishTimeout time.Duration

	// repoDirFromStore is set when PublishRepoDir was derived from StorePath.
	repoDirFromStore bool
}

// fileConfig mirrors Config for the YAML overlay; durations are strings like "4h".
type fileConfig struct {
	ListURL           string `yaml:"list_url"`
	RoomPageBase      string `yaml:"room_page_base"`
	RequestTimeout    string `yaml:"request_timeout"`
	RequestDelay      string `yaml:"request_delay"`
	DiscoveryPages    int    `yaml:"discovery_pages"`
	DiscoveryPageSize int    `yaml:"discovery_page_size"`
	StrictPages       *bool  `yaml:"strict_pages"`
	ManifestMarker    string `yaml:"manifest_marker"`
	FlvMarker         string `yaml:"flv_marker"`
	StorePath         string `yaml:"store_path"`
	CrawlInterval     string `yaml:"crawl_interval"`
	CrawlOnStart      *bool  `yaml:"crawl_on_start"`
	HTTPAddr          string `yaml:"http_addr"`
	DBDsn             string `yaml:"db_dsn"`
	MigrationsPath    string `yaml:"migrations_path"`
	Publish           struct {
		Git     *bool  `yaml:"git"`
		RepoDir string `yaml:"repo_dir"`
		Remote  string `yaml:"remote"`
		Branch  string `yaml:"branch"`
		Timeout string `yaml:"timeout"`
	} `yaml:"publish"`
}

const (
	defaultPages          = 10
	defaultPageSize       = 30
	defaultRequestTimeout = 15 * time.Second
	defaultRequestDelay   = 500 * time.Millisecond
	defaultInterval       = 4 * time.Hour
	defaultPublishTimeout = time.Minute
	defaultStorePath      = "data/data.json"
	defaultManifestMarker = ".m3u8"
	defaultFlvMarker      = ".flv?"
)

// Load reads environment variables, overlays CONFIG_PATH (if set) underneath them and applies defaults.
// Malformed values are reported rather than silently replaced.
func Load() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	var errs []error
	dur := func(key, file string, def time.Duration) time.Duration {
		d, err := durationValue(key, file, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	num := func(key string, file, def int) int {
		n, err := intValue(key, file, def)
		if err != nil {
			errs = append(errs, err)
		}
		return n
	}
	flag := func(key string, file *bool, def bool) bool {
		b, err := boolValue(key, file, def)
		if err != nil {
			errs = append(errs, err)
		}
		return b
	}

	cfg.ListURL = firstNonEmpty(os.Getenv("LIST_API_URL"), fc.ListURL, bilibili.DefaultListURL)
	cfg.RoomPageBase = firstNonEmpty(os.Getenv("ROOM_PAGE_BASE"), fc.RoomPageBase, bilibili.DefaultRoomPageBase)
	cfg.RequestTimeout = dur("REQUEST_TIMEOUT", fc.RequestTimeout, defaultRequestTimeout)
	cfg.RequestDelay = dur("REQUEST_DELAY", fc.RequestDelay, defaultRequestDelay)

	cfg.DiscoveryPages = num("DISCOVERY_PAGES", fc.DiscoveryPages, defaultPages)
	cfg.DiscoveryPageSize = num("DISCOVERY_PAGE_SIZE", fc.DiscoveryPageSize, defaultPageSize)
	cfg.StrictPages = flag("DISCOVERY_STRICT_PAGES", fc.StrictPages, false)

	cfg.ManifestMarker = firstNonEmpty(os.Getenv("MANIFEST_MARKER"), fc.ManifestMarker, defaultManifestMarker)
	cfg.FlvMarker = firstNonEmpty(os.Getenv("FLV_MARKER"), fc.FlvMarker, defaultFlvMarker)

	cfg.StorePath = firstNonEmpty(os.Getenv("STORE_PATH"), fc.StorePath, defaultStorePath)

	cfg.CrawlInterval = dur("CRAWL_INTERVAL", fc.CrawlInterval, defaultInterval)
	cfg.CrawlOnStart = flag("CRAWL_ON_START", fc.CrawlOnStart, true)

	cfg.HTTPAddr = firstNonEmpty(os.Getenv("HTTP_ADDR"), fc.HTTPAddr, ":8080")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	cfg.DBDsn = firstNonEmpty(os.Getenv("DB_DSN"), fc.DBDsn)
	cfg.MigrationsPath = firstNonEmpty(os.Getenv("MIGRATIONS_PATH"), fc.MigrationsPath)

	cfg.PublishGit = flag("PUBLISH_GIT", fc.Publish.Git, false)
	cfg.PublishRepoDir = firstNonEmpty(os.Getenv("PUBLISH_REPO_DIR"), fc.Publish.RepoDir)
	if cfg.PublishRepoDir == "" {
		cfg.PublishRepoDir = filepath.Dir(cfg.StorePath)
		cfg.repoDirFromStore = true
	}
	cfg.PublishRemote = firstNonEmpty(os.Getenv("PUBLISH_REMOTE"), fc.Publish.Remote, "origin")
	cfg.PublishBranch = firstNonEmpty(os.Getenv("PUBLISH_BRANCH"), fc.Publish.Branch)
	cfg.PublishTimeout = dur("PUBLISH_TIMEOUT", fc.Publish.Timeout, defaultPublishTimeout)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// SetStorePath replaces StorePath after Load. A publish repo dir that was derived
// from the old store path follows the new one; an explicitly configured one is kept.
func (c *Config) SetStorePath(path string) {
	c.StorePath = path
	if c.repoDirFromStore {
		c.PublishRepoDir = filepath.Dir(path)
	}
}

// Validate checks ranges that would make a run meaningless or unsafe.
func (c *Config) Validate() error {
	var errs []error
	if c.DiscoveryPages < 1 {
		errs = append(errs, fmt.Errorf("DISCOVERY_PAGES must be >= 1, got %d", c.DiscoveryPages))
	}
	if c.DiscoveryPageSize < 1 || c.DiscoveryPageSize > 100 {
		errs = append(errs, fmt.Errorf("DISCOVERY_PAGE_SIZE must be in [1,100], got %d", c.DiscoveryPageSize))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be positive"))
	}
	if c.RequestDelay < 0 {
		errs = append(errs, fmt.Errorf("REQUEST_DELAY must not be negative"))
	}
	if c.CrawlInterval < time.Minute {
		errs = append(errs, fmt.Errorf("CRAWL_INTERVAL must be at least 1m, got %s", c.CrawlInterval))
	}
	if strings.TrimSpace(c.ManifestMarker) == "" || strings.TrimSpace(c.FlvMarker) == "" {
		errs = append(errs, fmt.Errorf("MANIFEST_MARKER and FLV_MARKER must be non-empty"))
	}
	if c.StorePath == "" {
		errs = append(errs, fmt.Errorf("STORE_PATH must be set"))
	}
	return errors.Join(errs...)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func durationValue(key, file string, def time.Duration) (time.Duration, error) {
	s := firstNonEmpty(os.Getenv(key), file)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func intValue(key string, file, def int) (int, error) {
	if s := os.Getenv(key); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return def, fmt.Errorf("invalid %s %q: %w", key, s, err)
		}
		return n, nil
	}
	if file != 0 {
		return file, nil
	}
	return def, nil
}

func boolValue(key string, file *bool, def bool) (bool, error) {
	if s := os.Getenv(key); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return def, fmt.Errorf("invalid %s %q: %w", key, s, err)
		}
		return b, nil
	}
	if file != nil {
		return *file, nil
	}
	return def, nil
}
