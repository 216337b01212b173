package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"imagepush/internal/ledger"
	"imagepush/internal/services"
	"imagepush/internal/testsupport"
)

type cliTestEnv struct {
	home       string
	configPath string
	sourceDir  string
	ledgerPath string
	server     *httptest.Server
	uploads    atomic.Int32
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	env := &cliTestEnv{
		home:       filepath.Join(base, "home"),
		configPath: filepath.Join(base, "config.toml"),
		sourceDir:  filepath.Join(base, "images"),
		ledgerPath: filepath.Join(base, "state", "ledger.db"),
	}
	testsupport.MkdirAll(t, env.home)
	testsupport.MkdirAll(t, env.sourceDir)
	t.Setenv("HOME", env.home)
	t.Setenv("IMAGEPUSH_API_KEY", "")
	t.Setenv("IMAGEPUSH_API_URL", "")

	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/media" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := env.uploads.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("remote-%d", n)})
	}))
	t.Cleanup(env.server.Close)

	return env
}

// writeConfig writes a config file; an empty body still yields a valid file.
func (env *cliTestEnv) writeConfig(t *testing.T, body string) {
	t.Helper()
	testsupport.WriteFile(t, env.configPath, []byte(body+"\n[api]\nrequests_per_second = 0\n"))
}

func (env *cliTestEnv) pushArgs(prefix string) []string {
	return []string{env.server.URL, "secret", env.ledgerPath, env.sourceDir, prefix}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n%s", needle, haystack)
	}
}

func TestWrongArgumentCountPrintsUsageAndDoesNothing(t *testing.T) {
	env := setupCLITestEnv(t)

	for _, args := range [][]string{
		nil,
		{"http://example.invalid"},
		{"a", "b", "c", "d"},
		{"a", "b", "c", "d", "e", "f"},
	} {
		out, _, err := runCLI(t, args, env.configPath)
		if err != nil {
			t.Fatalf("args %v: unexpected error %v", args, err)
		}
		requireContains(t, out, "imagepush <api-root> <api-key> <ledger> <dir> <tag-prefix>")
	}

	if env.uploads.Load() != 0 {
		t.Fatalf("expected no uploads, got %d", env.uploads.Load())
	}
	if _, err := os.Stat(filepath.Join(env.home, ".local")); !os.IsNotExist(err) {
		t.Fatalf("expected no state under HOME, stat err = %v", err)
	}
	if _, err := os.Stat(env.configPath); !os.IsNotExist(err) {
		t.Fatalf("expected config untouched, stat err = %v", err)
	}
}

func TestPushPublishesPendingItemsOnce(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeConfig(t, "")
	testsupport.WriteItem(t, env.sourceDir, testsupport.Item{ID: "a", Title: "Alpha", OwnerID: "o1", OwnerName: "Ann", Tags: []string{"beach"}})
	testsupport.WriteItem(t, env.sourceDir, testsupport.Item{ID: "b", Title: "Beta", OwnerID: "o1", Tags: []string{"sunset"}})

	out, _, err := runCLI(t, env.pushArgs("trip"), env.configPath)
	if err != nil {
		t.Fatalf("first push: %v", err)
	}
	want := "2 of 2 images not in the API\nPushing a (Alpha)\nPushing b (Beta)\n"
	if out != want {
		t.Fatalf("first push output mismatch\n got: %q\nwant: %q", out, want)
	}
	if env.uploads.Load() != 2 {
		t.Fatalf("expected 2 uploads, got %d", env.uploads.Load())
	}

	out, _, err = runCLI(t, env.pushArgs("trip"), env.configPath)
	if err != nil {
		t.Fatalf("second push: %v", err)
	}
	if out != "0 of 2 images not in the API\n" {
		t.Fatalf("second push output = %q", out)
	}
	if env.uploads.Load() != 2 {
		t.Fatalf("second run uploaded again: %d", env.uploads.Load())
	}

	out, _, err = runCLI(t, []string{"ledger", "stats", env.ledgerPath}, "")
	if err != nil {
		t.Fatalf("ledger stats: %v", err)
	}
	requireContains(t, out, "Records")
	requireContains(t, out, "Owners")

	out, _, err = runCLI(t, []string{"ledger", "list", env.ledgerPath, "--json"}, "")
	if err != nil {
		t.Fatalf("ledger list: %v", err)
	}
	var entries []entryJSON
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode ledger list: %v\n%s", err, out)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.OwnerID != "o1" {
			t.Fatalf("entry %s owner = %q", entry.LocalID, entry.OwnerID)
		}
		if len(entry.Tags) != 1 || !strings.HasPrefix(entry.Tags[0], "trip:") {
			t.Fatalf("entry %s tags = %v", entry.LocalID, entry.Tags)
		}
	}
}

func TestPushSkipPolicyReportsFailures(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeConfig(t, "[sync]\nfailure_policy = \"skip\"\n")
	testsupport.WriteItem(t, env.sourceDir, testsupport.Item{ID: "good", Title: "Good", OwnerID: "o1"})
	testsupport.WriteFile(t, filepath.Join(env.sourceDir, "bad.json"), []byte("{"))
	testsupport.WriteFile(t, filepath.Join(env.sourceDir, "bad.jpg"), []byte("jpeg"))

	out, _, err := runCLI(t, env.pushArgs("x"), env.configPath)
	if err == nil {
		t.Fatal("expected error for skipped item")
	}
	requireContains(t, err.Error(), "1 of 2 pending items failed")
	requireContains(t, out, "2 of 2 images not in the API")
	if env.uploads.Load() != 1 {
		t.Fatalf("expected 1 upload, got %d", env.uploads.Load())
	}

	out, _, err = runCLI(t, []string{"ledger", "list", env.ledgerPath}, "")
	if err != nil {
		t.Fatalf("ledger list: %v", err)
	}
	requireContains(t, out, "good")
	if strings.Contains(out, "bad") {
		t.Fatalf("failed item leaked into ledger:\n%s", out)
	}
}

func TestPushAbortPolicyStopsRun(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeConfig(t, "")
	testsupport.WriteItem(t, env.sourceDir, testsupport.Item{ID: "a", Title: "A", OwnerID: "o1", SkipImage: true})

	_, _, err := runCLI(t, env.pushArgs("x"), env.configPath)
	if err == nil {
		t.Fatal("expected abort on missing image")
	}
	if env.uploads.Load() != 0 {
		t.Fatalf("expected no uploads, got %d", env.uploads.Load())
	}
}

func TestPushMissingSourceDirectoryFailsPreflight(t *testing.T) {
	env := setupCLITestEnv(t)
	env.writeConfig(t, "")
	args := env.pushArgs("x")
	args[3] = filepath.Join(env.home, "missing")

	_, _, err := runCLI(t, args, env.configPath)
	if err == nil {
		t.Fatal("expected preflight failure")
	}
	requireContains(t, err.Error(), "Source directory")
	if _, statErr := os.Stat(env.ledgerPath); !os.IsNotExist(statErr) {
		t.Fatalf("ledger should not be created, stat err = %v", statErr)
	}
}

func TestLedgerCommandsRejectMissingLedger(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(env.home, "none.db")

	if _, _, err := runCLI(t, []string{"ledger", "stats", missing}, ""); err == nil {
		t.Fatal("expected error for missing ledger")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Fatalf("ledger stats created %s", missing)
	}
}

func TestLedgerListRejectsNegativeLimit(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"ledger", "list", env.ledgerPath, "--limit=-1"}, "")
	if !errors.Is(err, services.ErrUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestLedgerCommandsRespectRunLock(t *testing.T) {
	env := setupCLITestEnv(t)
	store, err := ledger.Open(context.Background(), env.ledgerPath)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lock, err := ledger.AcquireRunLock(env.ledgerPath)
	if err != nil {
		t.Fatalf("AcquireRunLock: %v", err)
	}
	for _, args := range [][]string{
		{"ledger", "stats", env.ledgerPath},
		{"ledger", "list", env.ledgerPath},
	} {
		if _, _, err := runCLI(t, args, ""); !errors.Is(err, ledger.ErrLedgerBusy) {
			t.Fatalf("%v: expected busy ledger, got %v", args, err)
		}
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	out, _, err := runCLI(t, []string{"ledger", "stats", env.ledgerPath}, "")
	if err != nil {
		t.Fatalf("ledger stats after release: %v", err)
	}
	requireContains(t, out, "Records")
}
