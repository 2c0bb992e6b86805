// Package config loads the media store settings from the environment or a
// config file and assembles a simplemedia.Service from them.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/idgen"
	"github.com/tendant/simple-media/pkg/simplemedia/pool"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of the defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default resize sizes. A requested size snaps to the closest entry.
var (
	DefaultAllowedSizes = SizeList{
		32, 64, 128, 256, 1024, 2048, 4096, 8192, 16384,
		50, 100, 200, 400, 500, 600, 800, 1000, 1050, 1200, 1600,
		120, 160, 240, 320, 480, 576, 640, 768, 854, 960, 1050, 1080,
		1152, 1280, 1440, 1536, 1716, 1920, 2160, 2560, 3200,
		3840, 3996, 4320, 4800, 5120, 6400, 6144, 7680, 12288,
	}
	DefaultAllowedVideoSizes = SizeList{144, 240, 360, 480, 720, 1080, 3840}
)

func defaults() Config {
	return Config{
		Port:              8075,
		CacheControl:      "max-age=290304000, public",
		UserAgent:         simplemedia.DefaultUserAgent,
		DeletionKey:       "caracal18",
		Auths:             Auths{},
		Concurrency:       pool.DefaultImageCapacity,
		DataPath:          "./data",
		AllowedSizes:      slices.Clone(DefaultAllowedSizes),
		AllowedVideoSizes: slices.Clone(DefaultAllowedVideoSizes),
		AllowedDomains:    OriginList{"*"},
		IDsGeneration:     idgen.DefaultStrategy,
		DatabaseURL:       "sqlite",
		Transformer:       TransformerExec,
		GMPath:            "gm",
		FFmpegPath:        "ffmpeg",
	}
}

// Transformer backends
const (
	TransformerExec   = "exec"
	TransformerNative = "native"
)

// Config holds every setting of the media store. Environment variable names
// are kept from the original deployment.
type Config struct {
	Port         int    `yaml:"http_port" env:"HTTP_PORT" env-description:"Listening HTTP port"`
	CacheControl string `yaml:"cache" env:"CACHE" env-description:"Cache-Control value of stored files"`
	UserAgent    string `yaml:"user_agent" env:"UA" env-description:"User agent of the remote fetcher"`
	DeletionKey  string `yaml:"deletions_key" env:"DELETIONS_KEY" env-description:"Key required to delete files; empty disables the check"`
	Auths        Auths  `yaml:"auths" env:"AUTHS" env-description:"JSON object of host name to user:password for remote fetches"`

	Concurrency      int `yaml:"concurrency" env:"CONCURRENCY" env-description:"Concurrent image transforms"`
	VideoConcurrency int `yaml:"video_concurrency" env:"VIDEO_CONCURRENCY" env-description:"Concurrent video transforms; 0 derives it from CONCURRENCY"`

	DataPath          string     `yaml:"datapath" env:"DATAPATH" env-description:"Storage folder"`
	AllowedSizes      SizeList   `yaml:"allowed_sizes" env:"ALLOWED_SIZES" env-description:"JSON list of resize sizes, or * for any"`
	AllowedVideoSizes SizeList   `yaml:"allowed_video_sizes" env:"ALLOWED_VIDEO_SIZES" env-description:"JSON list of video heights"`
	AllowedDomains    OriginList `yaml:"allowed_domains" env:"ALLOWED_DOMAINS" env-description:"JSON list of CORS origins, or *"`
	IDsGeneration     string     `yaml:"ids_generation" env:"IDS_GENERATION" env-description:"Opaque id strategy"`

	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL" env-description:"sqlite, sqlite://path, memory or postgres://..."`
	StorageURL  string `yaml:"storage_url" env:"STORAGE_URL" env-description:"file://path or s3://bucket?region=..."`

	Transformer      string        `yaml:"transformer" env:"TRANSFORMER" env-description:"exec (gm and ffmpeg) or native"`
	GMPath           string        `yaml:"gm_path" env:"GM_PATH" env-description:"GraphicsMagick binary"`
	FFmpegPath       string        `yaml:"ffmpeg_path" env:"FFMPEG_PATH" env-description:"FFmpeg binary"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT" env-description:"Remote fetch timeout; 0 is unbounded"`
	TransformTimeout time.Duration `yaml:"transform_timeout" env:"TRANSFORM_TIMEOUT" env-description:"Transform job timeout; 0 is unbounded"`

	PublicDir string `yaml:"public_dir" env:"PUBLIC_DIR" env-description:"Directory of static public assets"`
}

// WithEnv overrides the configuration with the environment variables that
// are set.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		return nil
	}
}

// WithConfigFile reads a YAML, JSON or TOML file. Environment variables
// still take precedence over the file.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithDataPath sets the storage folder
func WithDataPath(dir string) Option {
	return func(c *Config) error {
		if dir == "" {
			return errors.New("data path cannot be empty")
		}
		c.DataPath = dir
		return nil
	}
}

// WithDatabaseURL selects the metadata store
func WithDatabaseURL(dsn string) Option {
	return func(c *Config) error {
		c.DatabaseURL = dsn
		return nil
	}
}

// WithTransformer selects the transform backend
func WithTransformer(name string) Option {
	return func(c *Config) error {
		c.Transformer = name
		return nil
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Port)
	}
	if c.DataPath == "" {
		return errors.New("datapath is required")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.VideoConcurrency < 0 {
		return fmt.Errorf("video concurrency cannot be negative, got %d", c.VideoConcurrency)
	}
	if err := c.AllowedSizes.validate("allowed sizes"); err != nil {
		return err
	}
	if len(c.AllowedVideoSizes) == 0 {
		return errors.New("allowed video sizes cannot be empty")
	}
	if err := c.AllowedVideoSizes.validate("allowed video sizes"); err != nil {
		return err
	}
	if !slices.Contains(idgen.Strategies(), c.IDsGeneration) {
		return fmt.Errorf("unknown ids generation %q (one of %s)", c.IDsGeneration, strings.Join(idgen.Strategies(), ", "))
	}
	if c.Transformer != TransformerExec && c.Transformer != TransformerNative {
		return fmt.Errorf("transformer must be %q or %q, got %q", TransformerExec, TransformerNative, c.Transformer)
	}
	if c.FetchTimeout < 0 || c.TransformTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	if _, err := c.Database(); err != nil {
		return err
	}
	if _, err := c.Storage(); err != nil {
		return err
	}
	return nil
}

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// VideoCapacity is the configured video pool size, or one quarter of the
// image pool size when unset.
func (c *Config) VideoCapacity() int {
	if c.VideoConcurrency > 0 {
		return c.VideoConcurrency
	}
	return pool.VideoCapacity(c.Concurrency)
}

// UploadDir holds the blobs, or their local copies when stored in S3
func (c *Config) UploadDir() string {
	return filepath.Join(c.DataPath, "uploads")
}

// DerivedDir holds thumbnails, resizes and transcodes
func (c *Config) DerivedDir() string {
	return filepath.Join(c.DataPath, "derived")
}

// Database kinds
const (
	DatabaseMemory   = "memory"
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
)

// DatabaseConfig is the parsed form of DATABASE_URL
type DatabaseConfig struct {
	Kind string
	// DSN is the file path for sqlite and the connection string for postgres
	DSN string
}

// Database parses DATABASE_URL. An empty value or "sqlite" selects
// {DATAPATH}/media.db.
func (c *Config) Database() (DatabaseConfig, error) {
	dsn := c.DatabaseURL
	switch {
	case dsn == "" || dsn == DatabaseSQLite:
		return DatabaseConfig{Kind: DatabaseSQLite, DSN: filepath.Join(c.DataPath, "media.db")}, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return DatabaseConfig{}, errors.New("sqlite path cannot be empty in DATABASE_URL")
		}
		return DatabaseConfig{Kind: DatabaseSQLite, DSN: path}, nil
	case dsn == DatabaseMemory:
		return DatabaseConfig{Kind: DatabaseMemory}, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DatabaseConfig{Kind: DatabasePostgres, DSN: dsn}, nil
	}
	return DatabaseConfig{}, fmt.Errorf("unsupported DATABASE_URL format: %s (use 'sqlite', 'memory' or 'postgres://...')", dsn)
}

// Storage kinds
const (
	StorageFile = "file"
	StorageS3   = "s3"
)

// StorageConfig is the parsed form of STORAGE_URL
type StorageConfig struct {
	Kind string
	Dir  string // blob directory, or the local cache of the bucket

	Bucket       string
	Region       string
	Endpoint     string
	Prefix       string
	UsePathStyle bool
	CreateBucket bool
}

// Storage parses STORAGE_URL. Supported forms:
//
//	file:///path/to/uploads
//	s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true&prefix=media/&create_bucket=true
//
// An empty value stores blobs under {DATAPATH}/uploads.
func (c *Config) Storage() (StorageConfig, error) {
	raw := c.StorageURL
	if raw == "" {
		return StorageConfig{Kind: StorageFile, Dir: c.UploadDir()}, nil
	}

	if path, ok := strings.CutPrefix(raw, "file://"); ok {
		if path == "" {
			return StorageConfig{}, errors.New("filesystem path cannot be empty in STORAGE_URL")
		}
		return StorageConfig{Kind: StorageFile, Dir: path}, nil
	}

	if strings.HasPrefix(raw, "s3://") {
		u, err := url.Parse(raw)
		if err != nil {
			return StorageConfig{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
		}
		if u.Host == "" {
			return StorageConfig{}, errors.New("S3 bucket name cannot be empty in STORAGE_URL")
		}
		q := u.Query()
		sc := StorageConfig{
			Kind:     StorageS3,
			Dir:      c.UploadDir(),
			Bucket:   u.Host,
			Region:   q.Get("region"),
			Endpoint: q.Get("endpoint"),
			Prefix:   q.Get("prefix"),
		}
		if sc.UsePathStyle, err = queryBool(q, "path_style"); err != nil {
			return StorageConfig{}, err
		}
		if sc.CreateBucket, err = queryBool(q, "create_bucket"); err != nil {
			return StorageConfig{}, err
		}
		return sc, nil
	}

	return StorageConfig{}, fmt.Errorf("unsupported STORAGE_URL format: %s (use 'file://...' or 's3://...')", raw)
}

func queryBool(q url.Values, key string) (bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s in STORAGE_URL: %w", key, err)
	}
	return b, nil
}

// SizeList is a JSON list of pixel sizes. "*" clears the list, which lets
// every size through unchanged.
type SizeList []int

// SetValue implements cleanenv.Setter
func (s *SizeList) SetValue(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "*" {
		*s = SizeList{}
		return nil
	}
	var sizes []int
	if err := json.Unmarshal([]byte(raw), &sizes); err != nil {
		return fmt.Errorf("size list must be a JSON array of integers or *: %w", err)
	}
	*s = sizes
	return nil
}

func (s SizeList) validate(what string) error {
	for _, n := range s {
		if n <= 0 {
			return fmt.Errorf("%s must be positive, got %d", what, n)
		}
	}
	return nil
}

// OriginList is a JSON list of CORS origins, or "*".
type OriginList []string

// SetValue implements cleanenv.Setter
func (o *OriginList) SetValue(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "*" || raw == `"*"` {
		*o = OriginList{"*"}
		return nil
	}
	var origins []string
	if err := json.Unmarshal([]byte(raw), &origins); err != nil {
		return fmt.Errorf("allowed domains must be a JSON array of origins or *: %w", err)
	}
	*o = origins
	return nil
}

// Auths maps a host name to "user:password" for remote fetches.
type Auths map[string]string

// SetValue implements cleanenv.Setter
func (a *Auths) SetValue(raw string) error {
	auths := Auths{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &auths); err != nil {
			return fmt.Errorf("auths must be a JSON object: %w", err)
		}
	}
	*a = auths
	return nil
}
