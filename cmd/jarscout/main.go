package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/jarscout/internal/config"
	"github.com/mattjoyce/jarscout/internal/log"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	catalog    string
	logLevel   string
	logFormat  string
	workers    int
	lister     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "jarscout",
		Short: "Find Java classes in archives and directory trees",
		Long: `jarscout walks directory trees, lists the class entries of every Java
archive it finds on a bounded worker pool, reports stand-alone class files
and records everything in a local sqlite catalog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to jarscout.yaml or its directory")
	flags.StringVar(&opts.catalog, "catalog", "", "Path to the catalog database")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: json, text")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "Concurrent archive listings")
	flags.StringVar(&opts.lister, "lister", "", "Archive lister: zip, command")

	root.AddCommand(
		newScanCmd(opts),
		newFindCmd(opts),
		newServeCmd(opts),
		newWatchCmd(opts),
		newStatusCmd(opts),
		newDoctorCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves the config file, applies flag overrides and sets up
// logging. Logs go to stderr so stdout stays clean for results; quiet
// discards them unless a log file is configured.
func loadConfig(cmd *cobra.Command, opts *globalOptions, quiet bool) (*config.Config, error) {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logOpts := cfg.LogOptions()
	logOpts.Output = cmd.ErrOrStderr()
	if quiet {
		logOpts.Output = io.Discard
	}
	log.Setup(logOpts)
	if cfg.SourceFile != "" {
		log.Debug("configuration loaded", "file", cfg.SourceFile)
	}
	return cfg, nil
}

// resolveConfig loads the config file and applies flag overrides without
// validating the result.
func resolveConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	// A missing .env is not an error.
	_ = godotenv.Load()

	path := opts.configPath
	if path == "" {
		path = config.Discover()
	}

	cfg := config.Defaults()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("catalog") {
		cfg.Catalog.Path = opts.catalog
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if flags.Changed("workers") {
		cfg.Scan.Workers = opts.workers
	}
	if flags.Changed("lister") {
		cfg.Scan.Lister = opts.lister
	}
	return cfg, nil
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func newVersionCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentVersionInfo()
			out := cmd.OutOrStdout()
			if jsonOut {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("render version JSON: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintf(out, "jarscout %s\n", info.Version)
			fmt.Fprintf(out, "commit: %s\n", info.Commit)
			fmt.Fprintf(out, "built_at: %s\n", info.BuildTime)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output version metadata as JSON")
	return cmd
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}
