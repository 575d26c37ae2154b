package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/catalog"
	"github.com/mattjoyce/jarscout/internal/config"
	"github.com/mattjoyce/jarscout/internal/log"
	"github.com/mattjoyce/jarscout/internal/pipeline"
)

func TestMain(m *testing.M) {
	log.Setup(log.Options{Level: "ERROR", Output: io.Discard}) // Suppress logs in tests
	os.Exit(m.Run())
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// isolateConfig points discovery at an empty config and returns a catalog
// path in a fresh directory.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "jarscout.yaml")
	if err := os.WriteFile(cfgPath, []byte("scan:\n  workers: 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JARSCOUT_CONFIG", cfgPath)
	return filepath.Join(dir, "catalog.db")
}

func writeJar(t *testing.T, path string, entries ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for _, e := range entries {
		fw, err := w.Create(e)
		require.NoError(t, err)
		_, err = fw.Write([]byte("cafebabe"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// scanTree builds a tree with one good archive, one corrupt archive, one
// stand-alone class and one unrelated file.
func scanTree(t *testing.T) (root, jar, broken, loose string) {
	t.Helper()
	root = t.TempDir()
	jar = filepath.Join(root, "lib", "app.jar")
	broken = filepath.Join(root, "lib", "broken.jar")
	loose = filepath.Join(root, "src", "Loose.class")

	writeJar(t, jar, "META-INF/MANIFEST.MF", "com/acme/Widget.class", "com/acme/Gadget.class")
	writeFile(t, broken, "not a zip")
	writeFile(t, loose, "cafebabe")
	writeFile(t, filepath.Join(root, "README.md"), "# readme")
	return root, jar, broken, loose
}

func TestScanFindAndStatus(t *testing.T) {
	db := isolateConfig(t)
	root, jar, broken, loose := scanTree(t)

	code, out, stderr := runCmd(t, "scan", "--catalog", db, "--classes", root)
	require.Equal(t, 0, code, "stderr: %s", stderr)

	assert.Contains(t, out, jar+" (2 classes)")
	assert.Contains(t, out, "  com/acme/Widget.class")
	assert.Contains(t, out, "FAILED "+broken)
	assert.Contains(t, out, "stand-alone (1 classes)\n  "+loose)
	assert.NotContains(t, out, "README.md")
	assert.Contains(t, out, "Scanned 1 root(s): 1 archive(s), 2 archived class(es), 1 stand-alone class(es), 1 failure(s)")

	code, out, _ = runCmd(t, "find", "--catalog", db, "widget")
	require.Equal(t, 0, code)
	assert.Equal(t, jar+"\n  com/acme/Widget.class\n", out)

	code, out, _ = runCmd(t, "find", "--catalog", db, "loose")
	require.Equal(t, 0, code)
	assert.Equal(t, "stand-alone\n  "+loose+"\n", out)

	code, out, _ = runCmd(t, "find", "--catalog", db, "--json", "class")
	require.Equal(t, 0, code)
	var matches []catalog.Match
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	assert.Len(t, matches, 3)

	code, out, _ = runCmd(t, "find", "--catalog", db, "nothing-here")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `No classes match "nothing-here"`)

	code, out, _ = runCmd(t, "status", "--catalog", db)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "lock: free")
	assert.Contains(t, out, "scans: 1")
	assert.Contains(t, out, root)
	assert.Contains(t, out, "(finished ")
}

func TestScanSingleFile(t *testing.T) {
	db := isolateConfig(t)
	_, jar, _, _ := scanTree(t)

	code, out, stderr := runCmd(t, "scan", "--catalog", db, jar)
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, out, jar+" (2 classes)")
	assert.Contains(t, out, "Scanned 0 root(s): 1 archive(s)")
}

func TestScanRelativeArgsRecordAbsolutePaths(t *testing.T) {
	db := isolateConfig(t)
	_, jar, _, _ := scanTree(t)
	dir := filepath.Dir(jar)
	t.Chdir(dir)

	code, out, stderr := runCmd(t, "scan", "--catalog", db, filepath.Base(jar))
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Contains(t, out, jar+" (2 classes)")

	ctx := context.Background()
	store, err := catalog.Open(ctx, db)
	require.NoError(t, err)
	defer store.Close()

	scans, err := store.Scans(ctx)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.True(t, filepath.IsAbs(scans[0].Root), "scan root %q is relative", scans[0].Root)
	assert.Equal(t, dir, scans[0].Root)
}

func TestScanMissingRoot(t *testing.T) {
	db := isolateConfig(t)
	code, _, stderr := runCmd(t, "scan", "--catalog", db, filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no such file or directory")
}

func TestScanRequiresArgs(t *testing.T) {
	isolateConfig(t)
	code, _, stderr := runCmd(t, "scan")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "requires at least 1 arg")
}

func TestInvalidFlagOverrideFailsValidation(t *testing.T) {
	db := isolateConfig(t)
	code, _, stderr := runCmd(t, "find", "--catalog", db, "--lister", "magic")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "lister")
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

func TestVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.2.3", "0123456789abcdef0123", "2026-03-01T10:20:30+02:00")

	code, out, _ := runCmd(t, "version", "--json")
	if code != 0 {
		t.Fatalf("version exited %d", code)
	}
	var info versionInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("unmarshal version JSON: %v\n%s", err, out)
	}
	if info.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", info.Version)
	}
	if info.Commit != "0123456789ab" {
		t.Errorf("commit = %q, want 0123456789ab", info.Commit)
	}
	if info.BuildTime != "2026-03-01T08:20:30Z" {
		t.Errorf("build_time = %q, want 2026-03-01T08:20:30Z", info.BuildTime)
	}
}

func TestVersionText(t *testing.T) {
	setVersionMetadataForTest(t, "", "abc", "not-a-date")

	code, out, _ := runCmd(t, "version")
	if code != 0 {
		t.Fatalf("version exited %d", code)
	}
	if want := "jarscout 0.0.0-dev\ncommit: abc\n"; len(out) < len(want) || out[:len(want)] != want {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestNewLister(t *testing.T) {
	cfg := config.Defaults().Scan

	l := newLister(cfg)
	d, ok := l.(archive.Digesting)
	require.True(t, ok, "digest wraps the lister by default")
	assert.Equal(t, archive.ZipLister{Suffixes: []string{".class"}}, d.Lister)

	cfg.Digest = false
	cfg.Lister = config.ListerCommand
	cfg.ListTimeout = time.Second
	c, ok := newLister(cfg).(archive.CommandLister)
	require.True(t, ok)
	assert.Equal(t, []string{"jar", "tf"}, c.Command)
	assert.Equal(t, time.Second, c.Timeout)
}

func TestGroupByContainer(t *testing.T) {
	matches := []catalog.Match{
		{Container: "b.jar", File: "x/A.class", Name: "A.class"},
		{Container: catalog.StandaloneContainer, File: "/src/A.class", Name: "A.class"},
		{Container: "a.jar", File: "y/B.class", Name: "B.class"},
		{Container: "b.jar", File: "x/B.class", Name: "B.class"},
	}

	groups := groupByContainer(matches)
	require.Len(t, groups, 3)
	assert.Equal(t, "b.jar", groups[0].container)
	assert.Len(t, groups[0].matches, 2)
	assert.Equal(t, "a.jar", groups[1].container)
	assert.Equal(t, catalog.StandaloneContainer, groups[2].container)
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		listen string
		want   string
	}{
		{"127.0.0.1:8089", "http://127.0.0.1:8089"},
		{":9000", "http://127.0.0.1:9000"},
		{"0.0.0.0:9000", "http://127.0.0.1:9000"},
		{"https://scout.example.com", "https://scout.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.listen, func(t *testing.T) {
			assert.Equal(t, tt.want, serverURL(tt.listen))
		})
	}
}

func TestFinisherStampsScansWhenIdle(t *testing.T) {
	root, _, _, _ := scanTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := catalog.Open(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer store.Close()

	recorder := catalog.NewRecorder(store, nil)
	p := newPipeline(config.Defaults(), pipeline.Observers(recorder))
	defer func() {
		p.Stop()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		p.WaitUntilStopped(stopCtx)
	}()

	f := newFinisher(p, recorder)
	go f.run(ctx)

	_, err = f.Scan(root)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		scans, err := store.Scans(ctx)
		return err == nil && len(scans) == 1 && scans[0].FinishedAt != nil
	}, 5*time.Second, 20*time.Millisecond)

	archives, err := store.Archives(ctx, "")
	require.NoError(t, err)
	assert.Len(t, archives, 1)
}

func TestDoctorReportsHealthyConfig(t *testing.T) {
	catalogPath := isolateConfig(t)

	code, stdout, stderr := runCmd(t, "doctor", "--catalog", catalogPath)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Configuration valid.\n", stdout)
}

func TestDoctorFailsOnMissingCatalogDir(t *testing.T) {
	catalogPath := isolateConfig(t)
	missing := filepath.Join(filepath.Dir(catalogPath), "nope", "catalog.db")

	code, stdout, stderr := runCmd(t, "doctor", "--json", "--catalog", missing)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "configuration has errors")

	var result struct {
		Valid  bool `json:"valid"`
		Errors []struct {
			Category string `json:"category"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "catalog", result.Errors[0].Category)
}
