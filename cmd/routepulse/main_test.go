package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jpalmerr/routepulse/internal/route"
	"github.com/jpalmerr/routepulse/internal/storage/sqlite"
)

// executeCmd runs the root command with args and returns captured stdout,
// stderr and any error.
func executeCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// seedSQLite creates a database at path holding routes.
func seedSQLite(t *testing.T, path string, routes ...route.Route) {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.New(ctx, path)
	if err != nil {
		t.Fatalf("sqlite.New() error = %v", err)
	}
	defer st.Close()
	for _, r := range routes {
		if err := st.UpsertRoute(ctx, r); err != nil {
			t.Fatalf("UpsertRoute(%s) error = %v", r.ID, err)
		}
	}
}

func dbRoute(id, url string, interval int) route.Route {
	return route.Route{ID: id, Name: id, URL: url, Method: "GET", MonitoringInterval: interval, IsActive: true}
}

func TestVersion(t *testing.T) {
	out, _, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.Contains(out, "routepulse dev") || !strings.Contains(out, "commit: none") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRunValidate_SQLiteRoutes(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "routes.db")

	inactive := dbRoute("off", "https://off.example.com", 30)
	inactive.IsActive = false
	seedSQLite(t, dbPath,
		dbRoute("a", "https://a.example.com", 30),
		dbRoute("b", "https://b.example.com", 60),
		dbRoute("c", "https://c.example.com", 30),
		dbRoute("bad", "ftp://bad.example.com", 30),
		inactive,
	)

	configPath := writeFile(t, dir, "routepulse.yaml", `
database:
  driver: sqlite
  url: `+dbPath+`
`)

	out, _, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expected := []string{
		"Config is valid!",
		"Database:      sqlite",
		"Route source:  database",
		"Active routes: 3 (1 skipped as invalid)",
		"every 30s: 2",
		"every 60s: 1",
	}
	for _, phrase := range expected {
		if !strings.Contains(out, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, out)
		}
	}
	if strings.Index(out, "every 30s") > strings.Index(out, "every 60s") {
		t.Errorf("intervals not sorted:\n%s", out)
	}
}

func TestRunValidate_FileSource(t *testing.T) {
	dir := t.TempDir()
	routesPath := writeFile(t, dir, "routes.yaml", `
routes:
  - id: api
    name: API
    url: https://api.example.com/health
    monitoringInterval: 15
  - id: web
    name: Web
    url: https://www.example.com
    monitoringInterval: 15
    retries: 2
`)
	configPath := writeFile(t, dir, "routepulse.yaml", `
database:
  driver: sqlite
  url: `+filepath.Join(dir, "results.db")+`
source:
  kind: file
  routes_file: `+routesPath+`
`)

	out, _, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}
	for _, phrase := range []string{"Route source:  file", "Active routes: 2 (0 skipped as invalid)", "every 15s: 2"} {
		if !strings.Contains(out, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, out)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "invalid.yaml", `
database:
  driver: mysql
  url: mysql://localhost/uptime
`)

	_, _, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil {
		t.Fatal("validate command should fail for an unknown driver")
	}
	if !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("error = %v, want invalid config", err)
	}
}

func TestRunValidate_MissingConfigFile(t *testing.T) {
	_, _, err := executeCmd(t, "validate", "-c", filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("validate command should fail for a missing config file")
	}
}

func TestRunValidate_UnreadableRoutesFile(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "routepulse.yaml", `
database:
  driver: sqlite
  url: `+filepath.Join(dir, "results.db")+`
source:
  kind: file
  routes_file: `+filepath.Join(dir, "missing.yaml")+`
`)

	_, _, err := executeCmd(t, "validate", "-c", configPath)
	if err == nil || !strings.Contains(err.Error(), "failed to read routes") {
		t.Errorf("error = %v, want failed to read routes", err)
	}
}
