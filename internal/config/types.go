package config

import "time"

// Config represents the complete jarscout configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Scan     ScanConfig     `yaml:"scan"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	API      APIConfig      `yaml:"api"`
	Webhooks WebhooksConfig `yaml:"webhooks"`

	// SourceFile is the file the config was loaded from, empty for defaults.
	SourceFile string `yaml:"-"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"`
	File   LogFileConfig `yaml:"file"`
}

// LogFileConfig enables rotating file output when Path is set.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ScanConfig defines how directories are walked and archives listed.
type ScanConfig struct {
	Workers            int           `yaml:"workers"`
	ArchiveSuffixes    []string      `yaml:"archive_suffixes"`
	StandaloneSuffixes []string      `yaml:"standalone_suffixes"`
	EntrySuffixes      []string      `yaml:"entry_suffixes"`
	Lister             string        `yaml:"lister"`
	Command            []string      `yaml:"command"`
	ListTimeout        time.Duration `yaml:"list_timeout"`
	RateLimit          float64       `yaml:"rate_limit"`
	RateBurst          int           `yaml:"rate_burst"`
	Digest             bool          `yaml:"digest"`
}

// CatalogConfig defines where results are stored.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen string `yaml:"listen"`
	APIKey string `yaml:"api_key"`
}

// WebhooksConfig defines signed scan hooks. The hook server only runs when
// at least one endpoint is configured.
type WebhooksConfig struct {
	Listen    string            `yaml:"listen"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookEndpoint maps one URL path to a scan root.
type WebhookEndpoint struct {
	// Path is the URL path, e.g. /hooks/artifacts.
	Path string `yaml:"path"`

	// Root is the directory scanned by default. Paths named in a request
	// body must lie inside it.
	Root string `yaml:"root"`

	// Secret is the HMAC-SHA256 key shared with the sender.
	Secret string `yaml:"secret"`

	// SignatureHeader carries the signature (default X-Hub-Signature-256).
	SignatureHeader string `yaml:"signature_header"`

	// MaxBodySize accepts plain bytes or a KB/MB/GB suffix (default 64KB).
	MaxBodySize string `yaml:"max_body_size"`
}

// Lister names.
const (
	ListerZip     = "zip"
	ListerCommand = "command"
)

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			File: LogFileConfig{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Scan: ScanConfig{
			Workers:            5,
			ArchiveSuffixes:    []string{".jar"},
			StandaloneSuffixes: []string{".class"},
			EntrySuffixes:      []string{".class"},
			Lister:             ListerZip,
			Command:            []string{"jar", "tf"},
			ListTimeout:        60 * time.Second,
			RateBurst:          1,
			Digest:             true,
		},
		Catalog: CatalogConfig{
			Path: "jarscout.db",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8089",
		},
		Webhooks: WebhooksConfig{
			Listen: "127.0.0.1:8090",
		},
	}
}
