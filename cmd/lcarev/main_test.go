package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hylla/lcarev/internal/app"
	"github.com/hylla/lcarev/internal/config"
	"github.com/hylla/lcarev/internal/revision"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("LCAREV_DEV_MODE", "false")
	_ = os.Unsetenv("LCAREV_CONFIG")
	_ = os.Unsetenv("LCAREV_DB_PATH")
	_ = os.Unsetenv("LCAREV_APP_NAME")
	os.Exit(m.Run())
}

// cliEnv holds per-test database and config locations.
type cliEnv struct {
	dbPath  string
	cfgPath string
}

// newCLIEnv returns a database path and a config path that does not exist yet.
func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	tmp := t.TempDir()
	return cliEnv{
		dbPath:  filepath.Join(tmp, "lcarev.db"),
		cfgPath: filepath.Join(tmp, "config.toml"),
	}
}

// run executes args against the env and returns stdout.
func (e cliEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.try(args...)
	if err != nil {
		t.Fatalf("run(%v) error = %v", args, err)
	}
	return out
}

// try executes args against the env and returns stdout and the error.
func (e cliEnv) try(args ...string) (string, error) {
	var out strings.Builder
	full := append([]string{"--db", e.dbPath, "--config", e.cfgPath}, args...)
	err := run(context.Background(), full, &out, io.Discard)
	return out.String(), err
}

// TestRunVersion verifies the version flag prints the build version.
func TestRunVersion(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--version"}, &out, io.Discard); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

// TestRunUnknownCommand verifies unknown subcommands fail.
func TestRunUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"unknown-command"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

// TestRunInvalidFlag verifies flag parse errors surface.
func TestRunInvalidFlag(t *testing.T) {
	if err := run(context.Background(), []string{"paths", "--unknown-flag"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected flag parse error")
	}
}

// TestRunPathsCommand verifies app name, dev mode and log dir reach the paths output.
func TestRunPathsCommand(t *testing.T) {
	var out strings.Builder
	err := run(context.Background(), []string{"--app", "lcarevx", "--dev", "paths"}, &out, io.Discard)
	if err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	output := out.String()
	for _, want := range []string{"app: lcarevx", "dev_mode: true", "db: ", "log_dir: "} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in paths output, got %q", want, output)
		}
	}
	if !strings.Contains(output, "lcarevx-dev") {
		t.Fatalf("expected dev suffix in resolved paths, got %q", output)
	}
}

// TestParseBoolEnv verifies boolean environment parsing.
func TestParseBoolEnv(t *testing.T) {
	t.Setenv("LCAREV_BOOL_TEST", "true")
	got, ok := parseBoolEnv("LCAREV_BOOL_TEST")
	if !ok || !got {
		t.Fatalf("expected true bool env parse, got value=%t ok=%t", got, ok)
	}

	t.Setenv("LCAREV_BOOL_TEST", "not-bool")
	if _, ok := parseBoolEnv("LCAREV_BOOL_TEST"); ok {
		t.Fatal("expected invalid bool env to return ok=false")
	}

	t.Setenv("LCAREV_BOOL_TEST", "")
	if _, ok := parseBoolEnv("LCAREV_BOOL_TEST"); ok {
		t.Fatal("expected empty bool env to return ok=false")
	}
}

// TestRunPutShowAndLog verifies saves produce a revision chain visible through log and show.
func TestRunPutShowAndLog(t *testing.T) {
	env := newCLIEnv(t)

	out := env.run(t, "activity", "put", "--id", "1", "--database", "ei", "--code", "steel",
		"--name", "steel", "--unit", "kilogram", "--category", "metals", "--classification", "ISIC rev.4=2410",
		"--author", "ada", "--title", "add steel")
	if !strings.Contains(out, "activity 1 saved in revision") {
		t.Fatalf("unexpected put output %q", out)
	}
	out = env.run(t, "activity", "put", "--id", "1", "--database", "ei", "--code", "steel",
		"--name", "steel", "--unit", "kilogram", "--category", "metals", "--classification", "ISIC rev.4=2410")
	if !strings.Contains(out, "activity 1 unchanged") {
		t.Fatalf("expected unchanged save, got %q", out)
	}
	env.run(t, "activity", "put", "--id", "1", "--database", "ei", "--code", "steel",
		"--name", "steel, low-alloyed", "--unit", "kilogram", "--title", "rename steel", "-m", "align with market naming")

	out = env.run(t, "exchange", "put", "--id", "2", "--input", "ei/coal", "--output", "ei/steel",
		"--amount", "0.7", "--pedigree", "reliability=2", "--property", "carbon content=0.8")
	if !strings.Contains(out, "exchange 2 saved") {
		t.Fatalf("unexpected exchange output %q", out)
	}
	out = env.run(t, "method", "put", "--id", "3", "--name", "IPCC 2013", "--name", "GWP 100a", "--unit", "kg CO2-Eq")
	if !strings.Contains(out, "method 3 saved") {
		t.Fatalf("unexpected method output %q", out)
	}

	out = env.run(t, "activity", "show", "1")
	var shown map[string]any
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("show output is not json: %v\n%s", err, out)
	}
	if shown["name"] != "steel, low-alloyed" {
		t.Fatalf("unexpected shown activity %#v", shown)
	}
	if out := env.run(t, "method", "show", "3", "--dump"); !strings.Contains(out, "GWP 100a") {
		t.Fatalf("expected dump to include method name, got %q", out)
	}
	if out := env.run(t, "exchange", "list"); !strings.Contains(out, "ei/coal") {
		t.Fatalf("expected exchange listing, got %q", out)
	}

	out = env.run(t, "log")
	if strings.Count(out, "revision ") != 4 {
		t.Fatalf("expected 4 log entries, got %q", out)
	}
	for _, want := range []string{"authors: ada", "title: add steel", "title: rename steel", "align with market naming", "(root)", "activity=1", "method=1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output, got %q", want, out)
		}
	}
	if out := env.run(t, "log", "--limit", "1"); strings.Count(out, "revision ") != 1 {
		t.Fatalf("expected one log entry with limit, got %q", out)
	}

	head := strings.TrimSpace(strings.TrimPrefix(env.run(t, "revision", "head"), "main:"))
	out = env.run(t, "revision", "show", head)
	rev, err := revision.Decode([]byte(out))
	if err != nil {
		t.Fatalf("revision show output does not decode: %v\n%s", err, out)
	}
	if rev.ID().String() != head || len(rev.Data) != 1 || rev.Data[0].Kind != revision.KindMethod {
		t.Fatalf("unexpected head revision %#v", rev)
	}
}

// TestRunRejectsInvalidRecords verifies validation failures leave history untouched.
func TestRunRejectsInvalidRecords(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.try("activity", "put", "--id", "1", "--database", "ei", "--code", "x"); err == nil {
		t.Fatal("expected missing name error")
	}
	if _, err := env.try("exchange", "put", "--id", "2", "--input", "coal", "--output", "ei/steel"); err == nil {
		t.Fatal("expected invalid key error")
	}
	if _, err := env.try("exchange", "put", "--id", "2", "--input", "ei/coal", "--output", "ei/steel", "--type", "gift"); err == nil {
		t.Fatal("expected invalid exchange type error")
	}
	if _, err := env.try("activity", "show", "abc"); err == nil {
		t.Fatal("expected invalid id error")
	}
	if _, err := env.try("activity", "show", "99"); err == nil {
		t.Fatal("expected not found error")
	}
	if out := env.run(t, "log"); !strings.Contains(out, "no revisions") {
		t.Fatalf("expected empty history, got %q", out)
	}
}

// TestRunExportImportAcrossDatabases verifies a bundle replays onto another database.
func TestRunExportImportAcrossDatabases(t *testing.T) {
	src := newCLIEnv(t)
	src.run(t, "activity", "put", "--id", "1", "--database", "ei", "--code", "steel", "--name", "steel")
	src.run(t, "activity", "put", "--id", "1", "--database", "ei", "--code", "steel", "--name", "steel, converter")
	src.run(t, "method", "put", "--id", "3", "--name", "ReCiPe", "--name", "climate change")

	var stdout strings.Builder
	if err := run(context.Background(), []string{"--db", src.dbPath, "--config", src.cfgPath, "export"}, &stdout, io.Discard); err != nil {
		t.Fatalf("run(export stdout) error = %v", err)
	}
	var bundle app.RevisionBundle
	if err := json.Unmarshal([]byte(stdout.String()), &bundle); err != nil {
		t.Fatalf("export stdout is not a bundle: %v", err)
	}
	if bundle.Version != app.RevisionBundleVersion || len(bundle.Revisions) != 3 {
		t.Fatalf("unexpected bundle version=%q revisions=%d", bundle.Version, len(bundle.Revisions))
	}

	bundlePath := filepath.Join(t.TempDir(), "out", "bundle.json")
	if out := src.run(t, "export", "--out", bundlePath); !strings.Contains(out, "exported 3 revisions") {
		t.Fatalf("unexpected export output %q", out)
	}

	dst := newCLIEnv(t)
	if out := dst.run(t, "import", "--in", bundlePath); !strings.Contains(out, "applied 3 revisions, skipped 0") {
		t.Fatalf("unexpected import output %q", out)
	}
	if out := dst.run(t, "import", "--in", bundlePath); !strings.Contains(out, "applied 0 revisions, skipped 3") {
		t.Fatalf("unexpected reimport output %q", out)
	}

	out := dst.run(t, "activity", "show", "1")
	if !strings.Contains(out, "steel, converter") {
		t.Fatalf("expected replayed activity, got %q", out)
	}
	srcHead := src.run(t, "revision", "head")
	if dstHead := dst.run(t, "revision", "head"); dstHead != srcHead {
		t.Fatalf("heads differ after import: src=%q dst=%q", srcHead, dstHead)
	}
}

// TestRunImportErrors verifies missing and malformed bundle inputs fail.
func TestRunImportErrors(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.try("import"); err == nil {
		t.Fatal("expected import error for missing --in")
	}

	badIn := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(badIn, []byte("{"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := env.try("import", "--in", badIn); err == nil {
		t.Fatal("expected import decode error")
	}

	wrongVersion := filepath.Join(t.TempDir(), "wrong.json")
	if err := os.WriteFile(wrongVersion, []byte(`{"version":"other","revisions":[]}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := env.try("import", "--in", wrongVersion); err == nil {
		t.Fatal("expected unsupported bundle error")
	}
}

// TestRunConfigAndDBEnvOverrides verifies env paths override defaults and config values.
func TestRunConfigAndDBEnvOverrides(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "env.db")
	cfgPath := filepath.Join(tmp, "env.toml")
	cfgContent := "[database]\npath = \"/tmp/ignore-me.db\"\n\n[revisions]\ndefault_authors = \"env author\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfgContent), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("LCAREV_CONFIG", cfgPath)
	t.Setenv("LCAREV_DB_PATH", dbPath)

	if err := run(context.Background(), []string{"activity", "put", "--id", "1", "--database", "ei", "--code", "x", "--name", "x"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(put with env paths) error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db created at env path, stat error %v", err)
	}
	var out strings.Builder
	if err := run(context.Background(), []string{"log"}, &out, io.Discard); err != nil {
		t.Fatalf("run(log) error = %v", err)
	}
	if !strings.Contains(out.String(), "authors: env author") {
		t.Fatalf("expected configured default author, got %q", out.String())
	}
}

// TestRunRejectsInvalidLoggingLevelFromConfig verifies config validation errors surface.
func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "lcarev.db")
	cfgPath := filepath.Join(tmp, "lcarev.toml")
	cfgContent := "[logging]\nlevel = \"verbose\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfgContent), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "log"}, io.Discard, io.Discard)
	if err == nil {
		t.Fatal("expected invalid logging level error")
	}
	if !strings.Contains(err.Error(), "invalid logging.level") {
		t.Fatalf("expected logging level validation error, got %v", err)
	}
}

// TestRunQuietKeepsConsoleClean verifies --quiet mutes runtime logs on stderr.
func TestRunQuietKeepsConsoleClean(t *testing.T) {
	env := newCLIEnv(t)
	var stderr bytes.Buffer
	args := []string{"--db", env.dbPath, "--config", env.cfgPath, "log"}
	if err := run(context.Background(), args, io.Discard, &stderr); err != nil {
		t.Fatalf("run(log) error = %v", err)
	}
	if !strings.Contains(stderr.String(), "startup configuration resolved") {
		t.Fatalf("expected runtime logs on stderr, got %q", stderr.String())
	}

	stderr.Reset()
	if err := run(context.Background(), append([]string{"--quiet"}, args...), io.Discard, &stderr); err != nil {
		t.Fatalf("run(--quiet log) error = %v", err)
	}
	if strings.Contains(stderr.String(), "startup configuration resolved") {
		t.Fatalf("expected quiet stderr, got %q", stderr.String())
	}
}

// TestRunDevModeCreatesWorkspaceLogFile verifies dev mode writes a logfmt file under the workspace.
func TestRunDevModeCreatesWorkspaceLogFile(t *testing.T) {
	workspace := t.TempDir()
	t.Chdir(workspace)

	dbPath := filepath.Join(workspace, "lcarev.db")
	cfgPath := filepath.Join(workspace, "config.toml")
	if err := run(context.Background(), []string{"--dev", "--db", dbPath, "--config", cfgPath, "log"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	logDir := filepath.Join(workspace, ".lcarev", "log")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	foundLog := false
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".log") {
			content, err := os.ReadFile(filepath.Join(logDir, entry.Name()))
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if !strings.Contains(string(content), "opening sqlite repository") {
				t.Fatalf("expected runtime events in dev log, got %q", content)
			}
			foundLog = true
		}
	}
	if !foundLog {
		t.Fatalf("expected at least one .log file in %s, got %v", logDir, entries)
	}
}

// TestWorkspaceRootFromUsesNearestMarker verifies workspace root discovery.
func TestWorkspaceRootFromUsesNearestMarker(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/test\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "cmd", "lcarev")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if got := workspaceRootFrom(nested); filepath.Clean(got) != filepath.Clean(root) {
		t.Fatalf("expected workspace root %q, got %q", root, got)
	}
}

// TestDevLogFilePathResolvesAgainstWorkspaceRoot verifies relative log dirs anchor at workspace root.
func TestDevLogFilePathResolvesAgainstWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/test\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "cmd", "lcarev")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	t.Chdir(nested)

	got, err := devLogFilePath(".lcarev/log", "lcarev", time.Date(2026, 2, 22, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("devLogFilePath() error = %v", err)
	}
	normalize := func(p string) string {
		return strings.TrimPrefix(filepath.Clean(p), "/private")
	}
	want := filepath.Join(root, ".lcarev", "log", "lcarev-20260222.log")
	if normalize(got) != normalize(want) {
		t.Fatalf("expected log path %q, got %q", want, got)
	}
}

// TestSanitizeLogFileStem verifies app names become safe file stems.
func TestSanitizeLogFileStem(t *testing.T) {
	cases := map[string]string{
		"lcarev":      "lcarev",
		" my app ":    "my-app",
		"org/lcarev":  "org-lcarev",
		"":            "lcarev",
		"/":           "lcarev",
		"c:\\lcarev ": "c--lcarev",
	}
	for in, want := range cases {
		if got := sanitizeLogFileStem(in); got != want {
			t.Fatalf("sanitizeLogFileStem(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestRuntimeLoggerCanMuteConsoleSink verifies console muting.
func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var console bytes.Buffer
	cfg := config.Default("/tmp/lcarev.db").Logging

	logger, err := newRuntimeLogger(&console, "lcarev", false, cfg, "", func() time.Time {
		return time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}

	logger.Info("before")
	logger.SetConsoleEnabled(false)
	logger.Info("during")
	logger.SetConsoleEnabled(true)
	logger.Info("after")

	out := console.String()
	if !strings.Contains(out, "before") {
		t.Fatalf("expected console log to include 'before', got %q", out)
	}
	if strings.Contains(out, "during") {
		t.Fatalf("expected muted console log to omit 'during', got %q", out)
	}
	if !strings.Contains(out, "after") {
		t.Fatalf("expected console log to include 'after', got %q", out)
	}
	if logger.DevLogPath() != "" {
		t.Fatalf("expected no dev log outside dev mode, got %q", logger.DevLogPath())
	}
}

// TestRuntimeLoggerDevFileFallsBackToLogDir verifies an empty dev dir uses the platform log dir.
func TestRuntimeLoggerDevFileFallsBackToLogDir(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "log")
	cfg := config.Default("/tmp/lcarev.db").Logging
	cfg.DevFile.Dir = ""

	logger, err := newRuntimeLogger(io.Discard, "lcarev", true, cfg, logDir, func() time.Time {
		return time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	t.Cleanup(func() {
		_ = logger.Close()
	})
	logger.Warn("hello", "k", 1)

	want := filepath.Join(logDir, "lcarev-20260223.log")
	if logger.DevLogPath() != want {
		t.Fatalf("DevLogPath() = %q, want %q", logger.DevLogPath(), want)
	}
	content, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "msg=hello") || !strings.Contains(string(content), "k=1") {
		t.Fatalf("expected logfmt event, got %q", content)
	}
}
