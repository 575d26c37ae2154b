// Package doctor checks a jarscout configuration against the environment it
// will run in.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattjoyce/jarscout/internal/config"
	"github.com/mattjoyce/jarscout/internal/lock"
	"github.com/mattjoyce/jarscout/internal/storage"
)

// minSecretLength is the shortest webhook secret accepted without a warning.
const minSecretLength = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	if err := d.cfg.Validate(); err != nil {
		d.addError(r, "config", "", err.Error())
	}
	d.validateLister(r)
	d.validateCatalog(r)
	d.validateAPI(r)
	d.validateWebhooks(r)
	d.warnSuffixes(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateLister checks that an external lister command can be found.
func (d *Doctor) validateLister(r *Result) {
	if d.cfg.Scan.Lister != config.ListerCommand || len(d.cfg.Scan.Command) == 0 {
		return
	}
	name := d.cfg.Scan.Command[0]
	if _, err := d.lookPath(name); err != nil {
		d.addError(r, "lister", "scan.command",
			fmt.Sprintf("lister command %q not found: %v", name, err))
	}
}

// validateCatalog checks that the catalog directory is local and writable,
// and reports a held lock.
func (d *Doctor) validateCatalog(r *Result) {
	path := d.cfg.Catalog.Path
	if path == "" {
		return
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		d.addError(r, "catalog", "catalog.path", fmt.Sprintf("catalog directory %s: %v", dir, err))
		return
	}
	if !info.IsDir() {
		d.addError(r, "catalog", "catalog.path", fmt.Sprintf("%s is not a directory", dir))
		return
	}
	probe, err := os.CreateTemp(dir, ".jarscout-doctor-*")
	if err != nil {
		d.addError(r, "catalog", "catalog.path", fmt.Sprintf("catalog directory %s is not writable: %v", dir, err))
		return
	}
	probe.Close()
	os.Remove(probe.Name())

	var nfs *storage.NetworkFSError
	if err := storage.CheckLocal(path); errors.As(err, &nfs) {
		d.addError(r, "catalog", "catalog.path", nfs.Error())
	} else if err != nil {
		d.addWarning(r, "catalog", "catalog.path", err.Error())
	}

	lk, err := lock.Acquire(path)
	switch {
	case errors.Is(err, lock.ErrLocked):
		d.addWarning(r, "catalog", "catalog.path", err.Error())
	case err != nil:
		d.addError(r, "catalog", "catalog.path", fmt.Sprintf("lock catalog: %v", err))
	default:
		lk.Release()
	}
}

// validateAPI checks the listen address and warns about an open, unauthenticated API.
func (d *Doctor) validateAPI(r *Result) {
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if d.cfg.API.APIKey == "" && !isLoopback(host) {
		d.addWarning(r, "api", "api.api_key",
			fmt.Sprintf("API listens on %s without an api_key; anyone who can reach it can queue scans", d.cfg.API.Listen))
	}
}

// validateWebhooks checks hook roots and secret strength.
func (d *Doctor) validateWebhooks(r *Result) {
	for i, ep := range d.cfg.Webhooks.Endpoints {
		field := fmt.Sprintf("webhooks.endpoints[%d]", i)

		if ep.Root != "" {
			info, err := os.Stat(ep.Root)
			switch {
			case err != nil:
				d.addError(r, "webhooks", field+".root", fmt.Sprintf("webhook %q root: %v", ep.Path, err))
			case !info.IsDir():
				d.addError(r, "webhooks", field+".root", fmt.Sprintf("webhook %q root %s is not a directory", ep.Path, ep.Root))
			}
		}

		if ep.Secret != "" && len(ep.Secret) < minSecretLength {
			d.addWarning(r, "webhooks", field+".secret",
				fmt.Sprintf("webhook %q secret is shorter than %d characters", ep.Path, minSecretLength))
		}
	}
}

// warnSuffixes flags suffix sets that make a scan surprising.
func (d *Doctor) warnSuffixes(r *Result) {
	scan := d.cfg.Scan
	if len(scan.EntrySuffixes) == 0 {
		d.addWarning(r, "scan", "scan.entry_suffixes",
			"no entry suffixes; every file inside an archive is recorded as a class")
	}
	for _, a := range scan.ArchiveSuffixes {
		for _, s := range scan.StandaloneSuffixes {
			if strings.EqualFold(a, s) {
				d.addWarning(r, "scan", "scan.standalone_suffixes",
					fmt.Sprintf("suffix %q is both an archive and a stand-alone suffix; archives win", a))
			}
		}
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnMissingEnvVars names ${VAR} references left unresolved in secrets.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	check := func(field, value string) {
		for _, m := range envVarRe.FindAllStringSubmatch(value, -1) {
			if os.Getenv(m[1]) == "" {
				d.addWarning(r, "env_vars", field, fmt.Sprintf("environment variable ${%s} not set", m[1]))
			}
		}
	}
	check("api.api_key", d.cfg.API.APIKey)
	for i, ep := range d.cfg.Webhooks.Endpoints {
		check(fmt.Sprintf("webhooks.endpoints[%d].secret", i), ep.Secret)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}

	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
	} else {
		fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
	}
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
