package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agentstation/propsync"
	"github.com/agentstation/propsync/pkg/logging"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	logger := zerolog.Nop()
	app, err := New("1.0.0", "abc123", "2024-01-01", "test",
		WithLogger(&logger),
		WithOutput(&stdout, &stderr),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := app.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() failed: %v", err)
		}
	})
	return app, &stdout
}

func writeNote(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func readNote(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// TestApp_New verifies app initialization.
func TestApp_New(t *testing.T) {
	app, err := New("1.0.0", "abc123", "2024-01-01", "test")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if app.Version() != "1.0.0" {
		t.Errorf("Version() = %s, want 1.0.0", app.Version())
	}
	if app.Commit() != "abc123" {
		t.Errorf("Commit() = %s, want abc123", app.Commit())
	}
	if app.Date() != "2024-01-01" {
		t.Errorf("Date() = %s, want 2024-01-01", app.Date())
	}
	if app.BuiltBy() != "test" {
		t.Errorf("BuiltBy() = %s, want test", app.BuiltBy())
	}
	if app.Logger() == nil {
		t.Error("Logger() returned nil")
	}
	if app.Config() == nil {
		t.Error("Config() returned nil")
	}
}

// TestApp_Client_Singleton verifies that Client() returns the same instance.
func TestApp_Client_Singleton(t *testing.T) {
	app, _ := newTestApp(t)
	app.config.Vault = t.TempDir()
	app.config.Database = MemoryDatabase

	c1, err := app.Client()
	if err != nil {
		t.Fatalf("Client() failed: %v", err)
	}
	c2, err := app.Client()
	if err != nil {
		t.Fatalf("Client() failed on second call: %v", err)
	}
	if c1 != c2 {
		t.Error("Client() returned different instances, expected singleton")
	}
}

// TestApp_Client_ThreadSafe verifies concurrent Client() calls are safe.
func TestApp_Client_ThreadSafe(t *testing.T) {
	app, _ := newTestApp(t)
	app.config.Vault = t.TempDir()
	app.config.Database = MemoryDatabase

	const goroutines = 50
	var wg sync.WaitGroup
	clients := make([]propsync.Client, goroutines)
	errs := make([]error, goroutines)
	for i := range goroutines {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			clients[idx], errs[idx] = app.Client()
		}(i)
	}
	wg.Wait()

	for i := range goroutines {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: Client() failed: %v", i, errs[i])
		}
		if clients[i] != clients[0] {
			t.Errorf("goroutine %d got a different client", i)
		}
	}
}

// TestApp_Client_MissingVault verifies a bad vault path is reported.
func TestApp_Client_MissingVault(t *testing.T) {
	app, _ := newTestApp(t)
	app.config.Vault = filepath.Join(t.TempDir(), "missing")
	app.config.Database = MemoryDatabase

	if _, err := app.Client(); err == nil {
		t.Error("Client() with a missing vault succeeded, want error")
	}
}

// TestApp_Shutdown verifies shutdown is safe without a client.
func TestApp_Shutdown(t *testing.T) {
	app, _ := newTestApp(t)
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v, want nil", err)
	}
}

func TestExecute_Version(t *testing.T) {
	app, stdout := newTestApp(t)
	if err := app.Execute(context.Background(), []string{"version"}); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "propsync version 1.0.0") {
		t.Errorf("version output = %q", stdout.String())
	}
}

// TestExecute_LogLevelSetsDefault verifies the default logger follows --log-level.
func TestExecute_LogLevelSetsDefault(t *testing.T) {
	original := *logging.Default()
	globalLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		logging.SetDefault(original)
		zerolog.SetGlobalLevel(globalLevel)
	})

	app, _ := newTestApp(t)
	if err := app.Execute(context.Background(), []string{"--log-level", "error", "version"}); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if got := logging.Default().GetLevel(); got != zerolog.ErrorLevel {
		t.Errorf("default logger level = %v, want %v", got, zerolog.ErrorLevel)
	}
	if got := app.Logger().GetLevel(); got != zerolog.ErrorLevel {
		t.Errorf("app logger level = %v, want %v", got, zerolog.ErrorLevel)
	}
}

func TestExecute_Sync(t *testing.T) {
	dir := t.TempDir()
	note := writeNote(t, dir, "note.md", "status:: done\n")
	writeNote(t, dir, "Templates/t.md", "kind:: template\n")

	app, stdout := newTestApp(t)
	args := []string{"sync", "--vault", dir, "--db", MemoryDatabase, "-o", "json"}
	if err := app.Execute(context.Background(), args); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if got, want := readNote(t, note), "---\nstatus: done\n---\nstatus:: done\n"; got != want {
		t.Errorf("note = %q, want %q", got, want)
	}

	var got struct {
		Totals propsync.Totals `json:"totals"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout.String())
	}
	if got.Totals.Documents != 2 {
		t.Errorf("Totals.Documents = %d, want 2", got.Totals.Documents)
	}
	if got.Totals.Added != 2 {
		t.Errorf("Totals.Added = %d, want 2", got.Totals.Added)
	}
}

func TestExecute_SyncDryRun(t *testing.T) {
	dir := t.TempDir()
	note := writeNote(t, dir, "note.md", "status:: done\n")

	app, stdout := newTestApp(t)
	args := []string{"sync", "--dry-run", "--vault", dir, "--db", MemoryDatabase, "-o", "table"}
	if err := app.Execute(context.Background(), args); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if got := readNote(t, note); got != "status:: done\n" {
		t.Errorf("dry run wrote the note: %q", got)
	}
	if !strings.Contains(stdout.String(), "1 of 1 documents changed") {
		t.Errorf("output = %q", stdout.String())
	}
}

func TestExecute_Check(t *testing.T) {
	dir := t.TempDir()
	note := writeNote(t, dir, "note.md", "status:: done\n")

	app, stdout := newTestApp(t)
	args := []string{"check", note, "--vault", dir, "--db", MemoryDatabase, "-o", "table"}
	if err := app.Execute(context.Background(), args); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "status") || !strings.Contains(stdout.String(), "add") {
		t.Errorf("check output = %q", stdout.String())
	}
	if got := readNote(t, note); got != "status:: done\n" {
		t.Errorf("check wrote the note: %q", got)
	}
}

func TestExecute_Forget(t *testing.T) {
	dir := t.TempDir()
	note := writeNote(t, dir, "note.md", "status:: done\n")

	app, stdout := newTestApp(t)
	args := []string{"forget", note, "--vault", dir, "--db", MemoryDatabase}
	if err := app.Execute(context.Background(), args); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "note.md: forgotten") {
		t.Errorf("forget output = %q", stdout.String())
	}
}

func TestExecute_ConfigValidate(t *testing.T) {
	app, stdout := newTestApp(t)
	if err := app.Execute(context.Background(), []string{"config", "validate"}); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "Settings are valid") {
		t.Errorf("validate output = %q", stdout.String())
	}

	app.config.Settings.Ignore.Patterns = []string{"/[/"}
	if err := app.Execute(context.Background(), []string{"config", "validate"}); err == nil {
		t.Error("validate accepted an invalid pattern")
	}
}

func TestExecute_InvalidOutput(t *testing.T) {
	dir := t.TempDir()
	writeNote(t, dir, "note.md", "status:: done\n")

	app, _ := newTestApp(t)
	args := []string{"sync", "--vault", dir, "--db", MemoryDatabase, "-o", "xml"}
	if err := app.Execute(context.Background(), args); err == nil {
		t.Error("Execute() accepted output format xml")
	}
}

func TestResolveDocuments(t *testing.T) {
	dir := t.TempDir()
	a := writeNote(t, dir, "a.md", "")
	writeNote(t, dir, "sub/b.md", "")
	writeNote(t, dir, "sub/c.txt", "")

	app, _ := newTestApp(t)
	app.config.Vault = dir
	v, err := app.Vault()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{"whole vault", nil, []string{"a.md", "sub/b.md"}, false},
		{"file", []string{a}, []string{"a.md"}, false},
		{"directory", []string{filepath.Join(dir, "sub")}, []string{"sub/b.md"}, false},
		{"root directory", []string{dir}, []string{"a.md", "sub/b.md"}, false},
		{"duplicates", []string{a, a}, []string{"a.md"}, false},
		{"not a document", []string{filepath.Join(dir, "sub", "c.txt")}, nil, true},
		{"outside", []string{os.TempDir()}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveDocuments(ctx, v, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveDocuments() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("resolveDocuments() = %v, want %v", got, tt.want)
			}
		})
	}
}
