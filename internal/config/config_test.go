package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// allEnvVars lists every variable Load reads; tests clear them all first.
var allEnvVars = []string{
	"OCC_CONFIG", "OCC_LOG_LEVEL", "OCC_LOG_QUERIES", "OCC_NATS_URL",
	"OCC_DB_HOST", "OCC_DB_PORT", "OCC_DB_CATALOG", "OCC_DB_USER", "OCC_DB_PASSWORD",
	"OCC_DB_CONNECT_TIMEOUT", "OCC_DB_ENCRYPT", "OCC_DB_TRUST_SERVER_CERT",
	"OCC_DB_APPLICATION_NAME", "OCC_DB_RETRY_ON_FAILURE", "OCC_DB_MAX_RETRY_COUNT",
	"OCC_DB_RETRY_DELAY", "OCC_DB_MAX_RETRY_DELAY", "OCC_DB_DETAILED_ERRORS",
	"OCC_DB_SENSITIVE_DATA_LOGGING",
	"OCC_EXPORT_INTERVAL", "OCC_EXPORT_FILE", "OCC_EXPORT_S3_BUCKET",
	"OCC_EXPORT_S3_ENDPOINT", "OCC_EXPORT_S3_REGION", "OCC_EXPORT_S3_KEY",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db := cfg.Database
	if db.Host != "localhost" || db.Port != 5432 || db.Catalog != "occurrences" {
		t.Errorf("unexpected address: %+v", db)
	}
	if db.ConnectTimeout != 60*time.Second {
		t.Errorf("ConnectTimeout = %v, want 60s", db.ConnectTimeout)
	}
	if !db.RetryOnFailure || db.MaxRetryCount != 6 || db.MaxRetryDelay != 30*time.Second {
		t.Errorf("unexpected retry defaults: %+v", db)
	}
	if db.Encrypt || db.TrustServerCert {
		t.Errorf("encryption should default off: %+v", db)
	}
	if !cfg.LogQueries || cfg.LogLevel != "info" {
		t.Errorf("unexpected logging defaults: queries=%v level=%q", cfg.LogQueries, cfg.LogLevel)
	}
	if cfg.Export.S3Region != "us-east-1" || cfg.Export.S3Key != "occurrences/export-{time}.jsonl" {
		t.Errorf("unexpected export defaults: %+v", cfg.Export)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("OCC_DB_HOST", "db.internal")
	t.Setenv("OCC_DB_PORT", "6543")
	t.Setenv("OCC_DB_CATALOG", "events")
	t.Setenv("OCC_DB_RETRY_ON_FAILURE", "false")
	t.Setenv("OCC_DB_CONNECT_TIMEOUT", "5s")
	t.Setenv("OCC_NATS_URL", "nats://localhost:4222")
	t.Setenv("OCC_EXPORT_INTERVAL", "10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 6543 || cfg.Database.Catalog != "events" {
		t.Errorf("unexpected address: %+v", cfg.Database)
	}
	if cfg.Database.RetryOnFailure {
		t.Error("RetryOnFailure should be false")
	}
	if cfg.Database.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.Database.ConnectTimeout)
	}
	if cfg.NATSURL != "nats://localhost:4222" {
		t.Errorf("NATSURL = %q", cfg.NATSURL)
	}
	if cfg.Export.Interval != 10*time.Minute {
		t.Errorf("Export.Interval = %v", cfg.Export.Interval)
	}
}

func TestLoadInvalid(t *testing.T) {
	for _, tc := range []struct {
		name string
		key  string
		val  string
	}{
		{"Port", "OCC_DB_PORT", "not-a-port"},
		{"PortRange", "OCC_DB_PORT", "70000"},
		{"Bool", "OCC_DB_ENCRYPT", "maybe"},
		{"Duration", "OCC_DB_CONNECT_TIMEOUT", "soon"},
		{"RetryCount", "OCC_DB_MAX_RETRY_COUNT", "0"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}

func TestLoadTOMLFile(t *testing.T) {
	clearAllEnv(t)
	path := filepath.Join(t.TempDir(), "occ.toml")
	data := `
log_level = "debug"

[database]
host = "pg.example"
catalog = "from_file"
connect_timeout = "15s"
encrypt = true

[export]
s3_bucket = "backups"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OCC_CONFIG", path)
	t.Setenv("OCC_DB_CATALOG", "from_env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "pg.example" {
		t.Errorf("Host = %q, want value from file", cfg.Database.Host)
	}
	if cfg.Database.Catalog != "from_env" {
		t.Errorf("Catalog = %q, env should win over file", cfg.Database.Catalog)
	}
	if cfg.Database.ConnectTimeout != 15*time.Second || !cfg.Database.Encrypt {
		t.Errorf("unexpected database: %+v", cfg.Database)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Port = %d, default should survive a partial file", cfg.Database.Port)
	}
	if cfg.LogLevel != "debug" || cfg.Export.S3Bucket != "backups" {
		t.Errorf("unexpected top-level values: level=%q bucket=%q", cfg.LogLevel, cfg.Export.S3Bucket)
	}
}

func TestLoadTOMLMissingFile(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("OCC_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing OCC_CONFIG file")
	}
}

func TestLoadFileIgnoresEnvPath(t *testing.T) {
	clearAllEnv(t)
	dir := t.TempDir()
	explicit := filepath.Join(dir, "explicit.toml")
	fromEnv := filepath.Join(dir, "env.toml")
	if err := os.WriteFile(explicit, []byte("[database]\nhost = \"explicit\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fromEnv, []byte("[database]\nhost = \"from-env\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OCC_CONFIG", fromEnv)
	t.Setenv("OCC_DB_PORT", "6543")

	cfg, err := LoadFile(explicit)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Database.Host != "explicit" {
		t.Errorf("Host = %q, want value from the explicit file", cfg.Database.Host)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("Port = %d, env overrides still apply", cfg.Database.Port)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDSN(t *testing.T) {
	for _, tc := range []struct {
		name string
		db   Database
		want []string
		not  []string
	}{
		{
			name: "IntegratedAuth",
			db:   Default().Database,
			want: []string{"host=localhost", "port=5432", "dbname=occurrences", "sslmode=disable", "connect_timeout=60", "application_name=occurrences"},
			not:  []string{"user=", "password="},
		},
		{
			name: "EncryptTrusted",
			db:   Database{Host: "h", Port: 1, Catalog: "c", Encrypt: true, TrustServerCert: true},
			want: []string{"sslmode=require"},
		},
		{
			name: "EncryptVerified",
			db:   Database{Host: "h", Port: 1, Catalog: "c", Encrypt: true},
			want: []string{"sslmode=verify-full"},
		},
		{
			name: "QuotedPassword",
			db:   Database{Host: "h", Port: 1, Catalog: "c", User: "app", Password: `it's secret`},
			want: []string{"user=app", `password='it\'s secret'`},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dsn := tc.db.DSN()
			for _, w := range tc.want {
				if !strings.Contains(dsn, w) {
					t.Errorf("DSN %q missing %q", dsn, w)
				}
			}
			for _, n := range tc.not {
				if strings.Contains(dsn, n) {
					t.Errorf("DSN %q should not contain %q", dsn, n)
				}
			}
		})
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			got := envOrDefault(tc.key, tc.fallback)
			if got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}
