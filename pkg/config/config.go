package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for followgraph
type Config struct {
	API       APIConfig      `yaml:"api" json:"api"`
	Cooldowns CooldownConfig `yaml:"cooldowns" json:"cooldowns"`
	Crawl     CrawlConfig    `yaml:"crawl" json:"crawl"`
	Storage   StorageConfig  `yaml:"storage" json:"storage"`
	Matrix    MatrixConfig   `yaml:"matrix" json:"matrix"`
	Metrics   MetricsConfig  `yaml:"metrics" json:"metrics"`
	Logging   LoggingConfig  `yaml:"logging" json:"logging"`
}

// APIConfig holds remote API settings
type APIConfig struct {
	BaseURL         string        `yaml:"base_url" json:"base_url" validate:"required,url"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	CredentialFiles []string      `yaml:"credential_files" json:"credential_files"`
	// UseStoredCredentials also pulls credentials saved with `auth add`.
	UseStoredCredentials bool `yaml:"use_stored_credentials" json:"use_stored_credentials"`
	// Offline runs without any API; only valid for commands that never call it.
	Offline bool `yaml:"offline" json:"offline"`
}

// CooldownConfig holds per-operation cooldowns applied after a credential is used
type CooldownConfig struct {
	FollowerPage time.Duration `yaml:"follower_page" json:"follower_page" validate:"gte=0"`
	FriendPage   time.Duration `yaml:"friend_page" json:"friend_page" validate:"gte=0"`
	UserLookup   time.Duration `yaml:"user_lookup" json:"user_lookup" validate:"gte=0"`
	Relationship time.Duration `yaml:"relationship" json:"relationship" validate:"gte=0"`
}

// CrawlConfig holds graph crawl settings
type CrawlConfig struct {
	Direction                string        `yaml:"direction" json:"direction" validate:"oneof=follower friend"`
	SavePoint                int           `yaml:"save_point" json:"save_point" validate:"gt=0"`
	SliceCount               int           `yaml:"slice_count" json:"slice_count" validate:"gt=0"`
	PagePollInterval         time.Duration `yaml:"page_poll_interval" json:"page_poll_interval" validate:"gt=0"`
	LookupPollInterval       time.Duration `yaml:"lookup_poll_interval" json:"lookup_poll_interval" validate:"gt=0"`
	RelationshipPollInterval time.Duration `yaml:"relationship_poll_interval" json:"relationship_poll_interval" validate:"gt=0"`
	SinglePageInterval       time.Duration `yaml:"single_page_interval" json:"single_page_interval" validate:"gte=0"`
	RetryDelay               time.Duration `yaml:"retry_delay" json:"retry_delay" validate:"gte=0"`
	TransientMaxAttempts     int           `yaml:"transient_max_attempts" json:"transient_max_attempts" validate:"gte=0"`
	Partitions               int           `yaml:"partitions" json:"partitions" validate:"gt=0"`
}

// StorageConfig selects and configures the blob backend
type StorageConfig struct {
	Backend          string       `yaml:"backend" json:"backend" validate:"oneof=fs badger minio"`
	Directory        string       `yaml:"directory" json:"directory"`
	CheckpointPrefix string       `yaml:"checkpoint_prefix" json:"checkpoint_prefix" validate:"required"`
	Badger           BadgerConfig `yaml:"badger" json:"badger"`
	Minio            MinioConfig  `yaml:"minio" json:"minio"`
}

// BadgerConfig configures the embedded badger backend
type BadgerConfig struct {
	Path           string        `yaml:"path" json:"path"`
	SyncWrites     bool          `yaml:"sync_writes" json:"sync_writes"`
	GCInterval     time.Duration `yaml:"gc_interval" json:"gc_interval"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio" json:"gc_discard_ratio" validate:"gte=0,lte=1"`
}

// MinioConfig configures the S3-compatible backend
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// MatrixConfig holds adjacency tile settings
type MatrixConfig struct {
	BatchSize      int    `yaml:"batch_size" json:"batch_size" validate:"gt=0"`
	FilePrefix     string `yaml:"file_prefix" json:"file_prefix" validate:"required"`
	InitialValue   int8   `yaml:"initial_value" json:"initial_value"`
	RelationSource string `yaml:"relation_source" json:"relation_source" validate:"oneof=live graph"`
	RowProgress    int    `yaml:"row_progress" json:"row_progress" validate:"gte=0"`
	// Workers bounds concurrent relationship queries; 0 uses the credential count.
	Workers int `yaml:"workers" json:"workers" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Address string `yaml:"address" json:"address"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

var validate = validator.New()

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:              "https://api.twitter.com",
			Timeout:              30 * time.Second,
			UseStoredCredentials: true,
		},
		Cooldowns: CooldownConfig{
			FollowerPage: 62 * time.Second,
			FriendPage:   62 * time.Second,
			UserLookup:   2 * time.Second,
			Relationship: 5 * time.Second,
		},
		Crawl: CrawlConfig{
			Direction:                "follower",
			SavePoint:                10,
			SliceCount:               11,
			PagePollInterval:         15 * time.Second,
			LookupPollInterval:       15 * time.Second,
			RelationshipPollInterval: 3 * time.Second,
			SinglePageInterval:       60 * time.Second,
			RetryDelay:               15 * time.Second,
			Partitions:               1,
		},
		Storage: StorageConfig{
			Backend:          "fs",
			Directory:        "./data/network",
			CheckpointPrefix: "SlicedUserNetwork",
			Badger: BadgerConfig{
				Path:           "./data/badger",
				SyncWrites:     true,
				GCInterval:     5 * time.Minute,
				GCDiscardRatio: 0.5,
			},
		},
		Matrix: MatrixConfig{
			BatchSize:      10000,
			FilePrefix:     "adj",
			InitialValue:   -42,
			RelationSource: "graph",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("FOLLOWGRAPH_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("FOLLOWGRAPH_CREDENTIAL_FILES"); v != "" {
		c.API.CredentialFiles = splitList(v)
	}
	if v := os.Getenv("FOLLOWGRAPH_OFFLINE"); v != "" {
		c.API.Offline = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("FOLLOWGRAPH_DIRECTION"); v != "" {
		c.Crawl.Direction = strings.ToLower(v)
	}
	if v := os.Getenv("FOLLOWGRAPH_SAVE_POINT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FOLLOWGRAPH_SAVE_POINT: %w", err))
		} else {
			c.Crawl.SavePoint = n
		}
	}
	if v := os.Getenv("FOLLOWGRAPH_SLICE_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FOLLOWGRAPH_SLICE_COUNT: %w", err))
		} else {
			c.Crawl.SliceCount = n
		}
	}
	if v := os.Getenv("FOLLOWGRAPH_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("FOLLOWGRAPH_DATA_DIR"); v != "" {
		c.Storage.Directory = v
	}
	if v := os.Getenv("FOLLOWGRAPH_MINIO_ENDPOINT"); v != "" {
		c.Storage.Minio.Endpoint = v
	}
	if v := os.Getenv("FOLLOWGRAPH_MINIO_ACCESS_KEY"); v != "" {
		c.Storage.Minio.AccessKey = v
	}
	if v := os.Getenv("FOLLOWGRAPH_MINIO_SECRET_KEY"); v != "" {
		c.Storage.Minio.SecretKey = v
	}
	if v := os.Getenv("FOLLOWGRAPH_MINIO_BUCKET"); v != "" {
		c.Storage.Minio.Bucket = v
	}
	if v := os.Getenv("FOLLOWGRAPH_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FOLLOWGRAPH_BATCH_SIZE: %w", err))
		} else {
			c.Matrix.BatchSize = n
		}
	}
	if v := os.Getenv("FOLLOWGRAPH_METRICS_ADDR"); v != "" {
		c.Metrics.Address = v
	}
	if v := os.Getenv("FOLLOWGRAPH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".followgraph.yaml",
		".followgraph.yml",
		filepath.Join(home, ".config", "followgraph", "config.yaml"),
		filepath.Join(home, ".config", "followgraph", "config.yml"),
		filepath.Join(home, ".followgraph.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q (%v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Directory == "" {
			errs = append(errs, errors.New("storage directory is required for the fs backend"))
		}
	case "badger":
		if c.Storage.Badger.Path == "" {
			errs = append(errs, errors.New("badger path is required for the badger backend"))
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			errs = append(errs, errors.New("minio endpoint and bucket are required for the minio backend"))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only non-zero values override.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["direction"].(string); ok && v != "" {
		c.Crawl.Direction = v
	}
	if v, ok := flags["save-point"].(int); ok && v > 0 {
		c.Crawl.SavePoint = v
	}
	if v, ok := flags["slices"].(int); ok && v > 0 {
		c.Crawl.SliceCount = v
	}
	if v, ok := flags["partitions"].(int); ok && v > 0 {
		c.Crawl.Partitions = v
	}
	if v, ok := flags["credentials"].([]string); ok && len(v) > 0 {
		c.API.CredentialFiles = v
	}
	if v, ok := flags["data-dir"].(string); ok && v != "" {
		c.Storage.Directory = v
	}
	if v, ok := flags["backend"].(string); ok && v != "" {
		c.Storage.Backend = v
	}
	if v, ok := flags["batch-size"].(int); ok && v > 0 {
		c.Matrix.BatchSize = v
	}
	if v, ok := flags["prefix"].(string); ok && v != "" {
		c.Matrix.FilePrefix = v
	}
	if v, ok := flags["source"].(string); ok && v != "" {
		c.Matrix.RelationSource = v
	}
	if v, ok := flags["row-progress"].(int); ok && v > 0 {
		c.Matrix.RowProgress = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Address = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment (.env included) > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".followgraph.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
