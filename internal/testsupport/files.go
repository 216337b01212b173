package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// Item describes a fixture written by WriteItem.
type Item struct {
	ID          string
	Title       string
	OwnerID     string
	OwnerName   string
	OwnerHandle string
	Tags        []string
	URL         string
	// ImageExt defaults to ".jpg". Set SkipImage to omit the payload.
	ImageExt  string
	SkipImage bool
}

// MkdirAll creates dir or fails the test.
func MkdirAll(t testing.TB, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path string, content []byte) {
	t.Helper()
	MkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteItem writes an image payload and its JSON sidecar into dir.
func WriteItem(t testing.TB, dir string, item Item) {
	t.Helper()

	owner := map[string]any{"id": item.OwnerID}
	if item.OwnerHandle != "" {
		owner["username"] = item.OwnerHandle
	}
	if item.OwnerName != "" {
		owner["name"] = item.OwnerName
	}
	doc := map[string]any{
		"id":    item.ID,
		"title": item.Title,
		"owner": owner,
		"tags":  item.Tags,
	}
	if item.URL != "" {
		doc["url"] = item.URL
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal sidecar %s: %v", item.ID, err)
	}
	WriteFile(t, filepath.Join(dir, item.ID+".json"), data)

	if item.SkipImage {
		return
	}
	ext := item.ImageExt
	if ext == "" {
		ext = ".jpg"
	}
	WriteFile(t, filepath.Join(dir, item.ID+ext), []byte("\xff\xd8\xff\xe0fake-jpeg-"+item.ID))
}
