package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/jarscout/internal/log"
)

const defaultFileName = "jarscout.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a config file, expands ${VAR} references from the environment,
// fills unset fields from Defaults and validates the result.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, defaultFileName)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourceFile = absPath

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover returns the config file to use: $JARSCOUT_CONFIG, then
// ./jarscout.yaml, then ~/.config/jarscout/jarscout.yaml. It returns ""
// when none exists, meaning defaults apply.
func Discover() string {
	if p := os.Getenv("JARSCOUT_CONFIG"); p != "" {
		return p
	}
	candidates := []string{defaultFileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "jarscout", defaultFileName))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// parse decodes YAML on top of Defaults. Unknown keys are rejected.
func parse(data []byte) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error (got %q)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be one of: json, text (got %q)", c.Log.Format)
	}

	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be positive")
	}
	if len(c.Scan.ArchiveSuffixes) == 0 && len(c.Scan.StandaloneSuffixes) == 0 {
		return fmt.Errorf("scan.archive_suffixes and scan.standalone_suffixes cannot both be empty")
	}
	switch c.Scan.Lister {
	case ListerZip:
	case ListerCommand:
		if len(c.Scan.Command) == 0 {
			return fmt.Errorf("scan.command is required when scan.lister is %q", ListerCommand)
		}
	default:
		return fmt.Errorf("scan.lister must be one of: %s, %s (got %q)", ListerZip, ListerCommand, c.Scan.Lister)
	}
	if c.Scan.ListTimeout < 0 {
		return fmt.Errorf("scan.list_timeout must not be negative")
	}
	if c.Scan.RateLimit < 0 {
		return fmt.Errorf("scan.rate_limit must not be negative")
	}

	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.API.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}

	fields := map[string]string{
		"catalog.path":  c.Catalog.Path,
		"api.api_key":   c.API.APIKey,
		"log.file.path": c.Log.File.Path,
	}
	for i, ep := range c.Webhooks.Endpoints {
		fields[fmt.Sprintf("webhooks.endpoints[%d].secret", i)] = ep.Secret
		fields[fmt.Sprintf("webhooks.endpoints[%d].root", i)] = ep.Root
	}
	for field, value := range fields {
		if m := envVarPattern.FindStringSubmatch(value); m != nil {
			return fmt.Errorf("%s: environment variable %s is not set", field, m[1])
		}
	}
	return c.validateWebhooks()
}

func (c *Config) validateWebhooks() error {
	if len(c.Webhooks.Endpoints) == 0 {
		return nil
	}
	if c.Webhooks.Listen == "" {
		return fmt.Errorf("webhooks.listen is required when endpoints are configured")
	}
	if c.Webhooks.Listen == c.API.Listen {
		return fmt.Errorf("webhooks.listen must differ from api.listen (%s)", c.API.Listen)
	}

	seen := make(map[string]int)
	for i, ep := range c.Webhooks.Endpoints {
		field := fmt.Sprintf("webhooks.endpoints[%d]", i)
		if !strings.HasPrefix(ep.Path, "/") {
			return fmt.Errorf("%s.path must start with / (got %q)", field, ep.Path)
		}
		normalized := strings.TrimSuffix(ep.Path, "/")
		if prev, ok := seen[normalized]; ok {
			return fmt.Errorf("%s.path %q conflicts with webhooks.endpoints[%d]", field, ep.Path, prev)
		}
		seen[normalized] = i
		if ep.Root == "" {
			return fmt.Errorf("%s.root is required", field)
		}
		if ep.Secret == "" {
			return fmt.Errorf("%s.secret is required", field)
		}
	}
	return nil
}

// LogOptions maps the log section onto log.Options.
func (c *Config) LogOptions() log.Options {
	return log.Options{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File.Path,
		MaxSizeMB:  c.Log.File.MaxSizeMB,
		MaxBackups: c.Log.File.MaxBackups,
		MaxAgeDays: c.Log.File.MaxAgeDays,
		Compress:   c.Log.File.Compress,
	}
}
