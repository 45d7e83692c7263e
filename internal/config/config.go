package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full runtime configuration. It is built once by Load and
// passed explicitly to whatever opens database sessions.
type Config struct {
	Database Database `toml:"database"`

	LogLevel   string `toml:"log_level"`   // OCC_LOG_LEVEL (default "info")
	LogQueries bool   `toml:"log_queries"` // OCC_LOG_QUERIES (default true)
	NATSURL    string `toml:"nats_url"`    // OCC_NATS_URL (optional, empty = no events)

	Export Export `toml:"export"`
}

// Database describes how to reach the storage engine and how commands
// against it behave.
type Database struct {
	Host            string        `toml:"host"`              // OCC_DB_HOST (default "localhost")
	Port            int           `toml:"port"`              // OCC_DB_PORT (default 5432)
	Catalog         string        `toml:"catalog"`           // OCC_DB_CATALOG (default "occurrences")
	User            string        `toml:"user"`              // OCC_DB_USER (optional)
	Password        string        `toml:"password"`          // OCC_DB_PASSWORD (empty = integrated auth)
	ConnectTimeout  time.Duration `toml:"connect_timeout"`   // OCC_DB_CONNECT_TIMEOUT (default 60s)
	Encrypt         bool          `toml:"encrypt"`           // OCC_DB_ENCRYPT (default false)
	TrustServerCert bool          `toml:"trust_server_cert"` // OCC_DB_TRUST_SERVER_CERT (default false)
	ApplicationName string        `toml:"application_name"`  // OCC_DB_APPLICATION_NAME (default "occurrences")

	// Execution strategy.
	RetryOnFailure bool          `toml:"retry_on_failure"` // OCC_DB_RETRY_ON_FAILURE (default true)
	MaxRetryCount  int           `toml:"max_retry_count"`  // OCC_DB_MAX_RETRY_COUNT (default 6)
	RetryDelay     time.Duration `toml:"retry_delay"`      // OCC_DB_RETRY_DELAY (default 1s)
	MaxRetryDelay  time.Duration `toml:"max_retry_delay"`  // OCC_DB_MAX_RETRY_DELAY (default 30s)

	// Command logging.
	DetailedErrors       bool `toml:"detailed_errors"`        // OCC_DB_DETAILED_ERRORS (default true)
	SensitiveDataLogging bool `toml:"sensitive_data_logging"` // OCC_DB_SENSITIVE_DATA_LOGGING (default true)
}

// Export configures the `occ export` command.
type Export struct {
	Interval   time.Duration `toml:"interval"`    // OCC_EXPORT_INTERVAL (default 0 = run once)
	File       string        `toml:"file"`        // OCC_EXPORT_FILE (optional; "-" or empty = stdout)
	S3Bucket   string        `toml:"s3_bucket"`   // OCC_EXPORT_S3_BUCKET (enables S3 when set)
	S3Endpoint string        `toml:"s3_endpoint"` // OCC_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	S3Region   string        `toml:"s3_region"`   // OCC_EXPORT_S3_REGION (default "us-east-1")
	S3Key      string        `toml:"s3_key"`      // OCC_EXPORT_S3_KEY (default "occurrences/export-{time}.jsonl"; {time} is the export time)
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Database: Database{
			Host:                 "localhost",
			Port:                 5432,
			Catalog:              "occurrences",
			ConnectTimeout:       60 * time.Second,
			ApplicationName:      "occurrences",
			RetryOnFailure:       true,
			MaxRetryCount:        6,
			RetryDelay:           time.Second,
			MaxRetryDelay:        30 * time.Second,
			DetailedErrors:       true,
			SensitiveDataLogging: true,
		},
		LogLevel:   "info",
		LogQueries: true,
		Export: Export{
			S3Region: "us-east-1",
			S3Key:    "occurrences/export-{time}.jsonl",
		},
	}
}

// Load builds a Config from defaults, then the TOML file named by
// OCC_CONFIG (if any), then OCC_* environment variables.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("OCC_CONFIG"))
}

// LoadFile is Load with the TOML file given explicitly. An empty path skips
// the file; OCC_CONFIG is not consulted.
func LoadFile(path string) (*Config, error) {
	c := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, c); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	db := &c.Database
	db.Host = envOrDefault("OCC_DB_HOST", db.Host)
	db.Catalog = envOrDefault("OCC_DB_CATALOG", db.Catalog)
	db.User = envOrDefault("OCC_DB_USER", db.User)
	db.Password = envOrDefault("OCC_DB_PASSWORD", db.Password)
	db.ApplicationName = envOrDefault("OCC_DB_APPLICATION_NAME", db.ApplicationName)
	c.LogLevel = envOrDefault("OCC_LOG_LEVEL", c.LogLevel)
	c.NATSURL = envOrDefault("OCC_NATS_URL", c.NATSURL)
	c.Export.File = envOrDefault("OCC_EXPORT_FILE", c.Export.File)
	c.Export.S3Bucket = envOrDefault("OCC_EXPORT_S3_BUCKET", c.Export.S3Bucket)
	c.Export.S3Endpoint = envOrDefault("OCC_EXPORT_S3_ENDPOINT", c.Export.S3Endpoint)
	c.Export.S3Region = envOrDefault("OCC_EXPORT_S3_REGION", c.Export.S3Region)
	c.Export.S3Key = envOrDefault("OCC_EXPORT_S3_KEY", c.Export.S3Key)

	for _, v := range []struct {
		key string
		dst *int
	}{
		{"OCC_DB_PORT", &db.Port},
		{"OCC_DB_MAX_RETRY_COUNT", &db.MaxRetryCount},
	} {
		if err := envInt(v.key, v.dst); err != nil {
			return nil, err
		}
	}

	for _, v := range []struct {
		key string
		dst *bool
	}{
		{"OCC_DB_ENCRYPT", &db.Encrypt},
		{"OCC_DB_TRUST_SERVER_CERT", &db.TrustServerCert},
		{"OCC_DB_RETRY_ON_FAILURE", &db.RetryOnFailure},
		{"OCC_DB_DETAILED_ERRORS", &db.DetailedErrors},
		{"OCC_DB_SENSITIVE_DATA_LOGGING", &db.SensitiveDataLogging},
		{"OCC_LOG_QUERIES", &c.LogQueries},
	} {
		if err := envBool(v.key, v.dst); err != nil {
			return nil, err
		}
	}

	for _, v := range []struct {
		key string
		dst *time.Duration
	}{
		{"OCC_DB_CONNECT_TIMEOUT", &db.ConnectTimeout},
		{"OCC_DB_RETRY_DELAY", &db.RetryDelay},
		{"OCC_DB_MAX_RETRY_DELAY", &db.MaxRetryDelay},
		{"OCC_EXPORT_INTERVAL", &c.Export.Interval},
	} {
		if err := envDuration(v.key, v.dst); err != nil {
			return nil, err
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("OCC_DB_HOST is required")
	}
	if c.Database.Catalog == "" {
		return fmt.Errorf("OCC_DB_CATALOG is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("OCC_DB_PORT: %d out of range", c.Database.Port)
	}
	if c.Database.RetryOnFailure && c.Database.MaxRetryCount <= 0 {
		return fmt.Errorf("OCC_DB_MAX_RETRY_COUNT must be positive when retry is enabled")
	}
	return nil
}

// DSN renders the database settings as a lib/pq key/value connection string.
func (d Database) DSN() string {
	params := []struct{ k, v string }{
		{"host", d.Host},
		{"port", strconv.Itoa(d.Port)},
		{"dbname", d.Catalog},
		{"user", d.User},
		{"password", d.Password},
		{"sslmode", d.sslMode()},
		{"connect_timeout", strconv.Itoa(int(d.ConnectTimeout / time.Second))},
		{"application_name", d.ApplicationName},
	}
	var parts []string
	for _, p := range params {
		if p.v == "" {
			continue
		}
		parts = append(parts, p.k+"="+quoteDSNValue(p.v))
	}
	return strings.Join(parts, " ")
}

// sslMode maps the Encrypt/TrustServerCert pair onto a libpq sslmode.
func (d Database) sslMode() string {
	switch {
	case !d.Encrypt:
		return "disable"
	case d.TrustServerCert:
		return "require"
	default:
		return "verify-full"
	}
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
