package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/ykrivopalov/objdeps/pkg/config"
	"github.com/ykrivopalov/objdeps/pkg/registry"
	"github.com/ykrivopalov/objdeps/pkg/store"
)

// runCollect executes collectArchives inside a cli context built from args.
func runCollect(t *testing.T, args []string, cfg *config.Config) ([]string, error) {
	t.Helper()

	var paths []string
	var collectErr error
	app := &cli.App{
		Commands: []*cli.Command{
			{
				Name: "build",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "libs"},
					&cli.StringSliceFlag{Name: "exclude"},
				},
				Action: func(c *cli.Context) error {
					paths, collectErr = collectArchives(c, cfg)
					return nil
				},
			},
		},
	}
	if err := app.Run(append([]string{"objdeps", "build"}, args...)); err != nil {
		t.Fatalf("app.Run() error: %v", err)
	}
	return paths, collectErr
}

func TestCollectArchivesExplicitLibs(t *testing.T) {
	cfg := config.DefaultConfig()

	paths, err := runCollect(t, []string{"--libs", "/usr/lib/liba.a", "--libs", "/usr/lib/libb.a"}, cfg)
	if err != nil {
		t.Fatalf("collectArchives() error: %v", err)
	}

	if len(paths) != 2 {
		t.Fatalf("collectArchives() returned %d paths, want 2", len(paths))
	}
	if paths[0] != "/usr/lib/liba.a" {
		t.Errorf("paths[0] = %q, want /usr/lib/liba.a", paths[0])
	}
}

func TestCollectArchivesLibsRelativeToDir(t *testing.T) {
	cfg := config.DefaultConfig()

	paths, err := runCollect(t, []string{"--libs", "liba.a", "--libs", "libb.a", "/opt/libs"}, cfg)
	if err != nil {
		t.Fatalf("collectArchives() error: %v", err)
	}

	want := []string{
		filepath.Join("/opt/libs", "liba.a"),
		filepath.Join("/opt/libs", "libb.a"),
	}
	if len(paths) != len(want) {
		t.Fatalf("collectArchives() returned %d paths, want %d", len(paths), len(want))
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestCollectArchivesScansDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"liba.a", "libb.so", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}

	cfg := config.DefaultConfig()
	paths, err := runCollect(t, []string{tmpDir}, cfg)
	if err != nil {
		t.Fatalf("collectArchives() error: %v", err)
	}

	if len(paths) != 2 {
		t.Errorf("collectArchives() returned %d paths, want 2", len(paths))
		for _, p := range paths {
			t.Logf("  Found: %s", p)
		}
	}
}

func TestCollectArchivesExclude(t *testing.T) {
	cfg := config.DefaultConfig()

	paths, err := runCollect(t, []string{
		"--libs", "/usr/lib/liba.a",
		"--libs", "/usr/lib/libb.a",
		"--exclude", "libb.a",
	}, cfg)
	if err != nil {
		t.Fatalf("collectArchives() error: %v", err)
	}

	if len(paths) != 1 {
		t.Fatalf("collectArchives() returned %d paths, want 1", len(paths))
	}
	if filepath.Base(paths[0]) != "liba.a" {
		t.Errorf("kept %s, want liba.a", paths[0])
	}
}

// newTestApp builds an app with the global flags commands expect.
func newTestApp(cmds ...*cli.Command) *cli.App {
	return &cli.App{
		Name: "objdeps",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}},
			&cli.StringFlag{Name: "db"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}},
			&cli.BoolFlag{Name: "verbose"},
		},
		Commands: cmds,
	}
}

// writeFakeNM writes a shell script that mimics nm POSIX output. Archives
// whose base name contains "bad" fail; libb.a imports a symbol defined by
// liba.a.
func writeFakeNM(t *testing.T, dir string) string {
	t.Helper()
	script := `#!/bin/sh
for a in "$@"; do path="$a"; done
base=$(basename "$path")
case "$base" in
  *bad*) echo "unreadable archive" >&2; exit 1 ;;
esac
case "$*" in
  *--defined-only*)
    echo "def_$base T 0000000000001000 8"
    ;;
  *)
    if [ "$base" = "libb.a" ]; then
      echo "def_liba.a U"
    fi
    ;;
esac
`
	path := filepath.Join(dir, "fakenm")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to write fake nm: %v", err)
	}
	return path
}

func writeBuildConfig(t *testing.T, dir, nmPath string) string {
	t.Helper()
	path := filepath.Join(dir, "objdeps.toml")
	content := fmt.Sprintf("[tool]\nnm = %q\n", nmPath)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestBuildCommand(t *testing.T) {
	tmpDir := t.TempDir()
	nmPath := writeFakeNM(t, tmpDir)
	cfgPath := writeBuildConfig(t, tmpDir, nmPath)
	dbFile := filepath.Join(tmpDir, "symbols.db")

	liba := filepath.Join(tmpDir, "liba.a")
	libb := filepath.Join(tmpDir, "libb.a")
	for _, p := range []string{liba, libb} {
		if err := os.WriteFile(p, []byte("!<arch>"), 0o644); err != nil {
			t.Fatalf("Failed to create archive: %v", err)
		}
	}

	app := newTestApp(buildCmd())
	err := app.Run([]string{"objdeps", "--config", cfgPath, "--db", dbFile,
		"build", "--libs", liba, "--libs", libb})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	reg, err := store.NewFileStore(dbFile).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("registry has %d libraries, want 2", reg.Len())
	}

	b, ok := reg.Get("libb.a")
	if !ok {
		t.Fatal("libb.a missing from registry")
	}
	if got := b.Dependencies.Names(); len(got) != 1 || got[0] != "liba.a" {
		t.Errorf("libb.a dependencies = %v, want [liba.a]", got)
	}
	a, ok := reg.Get("liba.a")
	if !ok {
		t.Fatal("liba.a missing from registry")
	}
	if got := a.Clients.Names(); len(got) != 1 || got[0] != "libb.a" {
		t.Errorf("liba.a clients = %v, want [libb.a]", got)
	}
}

func TestBuildCommandFailedExtraction(t *testing.T) {
	tmpDir := t.TempDir()
	nmPath := writeFakeNM(t, tmpDir)
	cfgPath := writeBuildConfig(t, tmpDir, nmPath)
	dbFile := filepath.Join(tmpDir, "symbols.db")

	liba := filepath.Join(tmpDir, "liba.a")
	libbad := filepath.Join(tmpDir, "libbad.a")
	for _, p := range []string{liba, libbad} {
		if err := os.WriteFile(p, []byte("!<arch>"), 0o644); err != nil {
			t.Fatalf("Failed to create archive: %v", err)
		}
	}

	app := newTestApp(buildCmd())
	err := app.Run([]string{"objdeps", "--config", cfgPath, "--db", dbFile,
		"build", "--libs", liba, "--libs", libbad})
	if err == nil {
		t.Fatal("build succeeded despite failing archive")
	}
	if !strings.Contains(err.Error(), "--skip-failed") {
		t.Errorf("error = %q, want mention of --skip-failed", err)
	}
	if _, err := os.Stat(dbFile); !os.IsNotExist(err) {
		t.Error("database written despite aborted build")
	}
}

func TestBuildCommandSkipFailed(t *testing.T) {
	tmpDir := t.TempDir()
	nmPath := writeFakeNM(t, tmpDir)
	cfgPath := writeBuildConfig(t, tmpDir, nmPath)
	dbFile := filepath.Join(tmpDir, "symbols.db")
	outFile := filepath.Join(tmpDir, "build.txt")

	liba := filepath.Join(tmpDir, "liba.a")
	libbad := filepath.Join(tmpDir, "libbad.a")
	for _, p := range []string{liba, libbad} {
		if err := os.WriteFile(p, []byte("!<arch>"), 0o644); err != nil {
			t.Fatalf("Failed to create archive: %v", err)
		}
	}

	app := newTestApp(buildCmd())
	err := app.Run([]string{"objdeps", "--config", cfgPath, "--db", dbFile, "--output", outFile,
		"build", "--skip-failed", "--libs", liba, "--libs", libbad})
	if err != nil {
		t.Fatalf("build --skip-failed: %v", err)
	}

	reg, err := store.NewFileStore(dbFile).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("registry has %d libraries, want 1", reg.Len())
	}

	content, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	out := string(content)
	if !strings.Contains(out, "WARNING: Skipped "+libbad) {
		t.Errorf("output %q missing skip warning for %s", out, libbad)
	}
	if !strings.Contains(out, "Saved 1 libraries to") {
		t.Errorf("output %q missing save confirmation", out)
	}
}

func TestStatsMetricsOutputFile(t *testing.T) {
	tmpDir := t.TempDir()
	dbFile := filepath.Join(tmpDir, "symbols.db")
	outFile := filepath.Join(tmpDir, "stats.txt")

	reg := registry.New()
	for _, lib := range []*registry.Library{
		registry.NewLibrary("x", registry.NewSet("sx"), registry.NewSet("sy")),
		registry.NewLibrary("y", registry.NewSet("sy"), registry.NewSet("sz")),
		registry.NewLibrary("z", registry.NewSet("sz"), registry.NewSet("sy")),
	} {
		if err := reg.Add(lib); err != nil {
			t.Fatalf("Add() error: %v", err)
		}
	}
	reg.Resolve()
	if err := reg.IndexClients(); err != nil {
		t.Fatalf("IndexClients() error: %v", err)
	}
	if err := store.NewFileStore(dbFile).Save(reg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	app := newTestApp(statsCmd())
	err := app.Run([]string{"objdeps", "--db", dbFile, "--output", outFile,
		"stats", "--metrics"})
	if err != nil {
		t.Fatalf("stats --metrics: %v", err)
	}

	content, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	out := string(content)

	// Everything, headers included, must land in the output file.
	for _, want := range []string{
		"Library Statistics",
		"Graph Metrics:",
		"  Libraries: 3",
		"  Edges: 3",
		"  Max Dependencies: 1",
		"Dependency cycles (1):",
		"  - [y z]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\noutput:\n%s", want, out)
		}
	}
}
