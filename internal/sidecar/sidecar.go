// Package sidecar decodes the JSON metadata document that accompanies each image.
package sidecar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"

	"imagepush/internal/services"
)

// Owner identifies the party that owns an item. Name and Handle are optional.
type Owner struct {
	ID     string
	Name   string
	Handle string
}

// ItemDescription is the decoded sidecar for one item.
type ItemDescription struct {
	ID     string
	Title  string
	Owner  Owner
	Tags   []string
	URL    string
	Source string
}

type document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Owner *struct {
		ID       string  `json:"id"`
		Username *string `json:"username"`
		Name     *string `json:"name"`
	} `json:"owner"`
	Tags   []string `json:"tags"`
	URL    *string  `json:"url"`
	Source string   `json:"source"`
}

// ErrorKind classifies a metadata failure.
type ErrorKind string

const (
	MissingFile        ErrorKind = "missing_file"
	MalformedContent   ErrorKind = "malformed_content"
	IdentifierMismatch ErrorKind = "identifier_mismatch"
)

// MetadataError reports why an item's description could not be produced.
type MetadataError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *MetadataError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sidecar %s: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("sidecar %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *MetadataError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrMetadata}
	}
	return []error{services.ErrMetadata, e.Err}
}

// NewMetadataError builds a MetadataError for callers outside this package,
// such as a missing image payload.
func NewMetadataError(kind ErrorKind, path string, err error) *MetadataError {
	return &MetadataError{Kind: kind, Path: path, Err: err}
}

// KindOf returns the metadata error kind carried by err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var metaErr *MetadataError
	if errors.As(err, &metaErr) {
		return metaErr.Kind, true
	}
	return "", false
}

// Loader reads sidecars from disk.
type Loader struct{}

// Load implements the engine loader contract.
func (Loader) Load(path string) (ItemDescription, error) {
	return Load(path)
}

// Load reads and decodes the sidecar at path.
func Load(path string) (ItemDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ItemDescription{}, &MetadataError{Kind: MissingFile, Path: path, Err: err}
		}
		return ItemDescription{}, &MetadataError{Kind: MalformedContent, Path: path, Err: err}
	}
	desc, err := Decode(data)
	if err != nil {
		return ItemDescription{}, &MetadataError{Kind: MalformedContent, Path: path, Err: err}
	}
	return desc, nil
}

// Decode parses a sidecar document.
func Decode(data []byte) (ItemDescription, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return ItemDescription{}, errors.New("empty document")
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return ItemDescription{}, fmt.Errorf("decode json: %w", err)
	}
	if doc.Owner == nil || strings.TrimSpace(doc.Owner.ID) == "" {
		return ItemDescription{}, errors.New("owner.id is required")
	}

	desc := ItemDescription{
		ID:     strings.TrimSpace(doc.ID),
		Title:  norm.NFC.String(strings.TrimSpace(doc.Title)),
		Owner:  Owner{ID: strings.TrimSpace(doc.Owner.ID)},
		Tags:   normalizeTags(doc.Tags),
		Source: strings.TrimSpace(doc.Source),
	}
	if doc.Owner.Username != nil {
		desc.Owner.Handle = strings.TrimSpace(*doc.Owner.Username)
	}
	if doc.Owner.Name != nil {
		desc.Owner.Name = norm.NFC.String(strings.TrimSpace(*doc.Owner.Name))
	}
	if doc.URL != nil {
		desc.URL = strings.TrimSpace(*doc.URL)
	}
	return desc, nil
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = norm.NFC.String(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		out = append(out, tag)
	}
	return out
}

// CheckIdentifier compares the sidecar identifier with the one derived from
// the file name. An empty sidecar identifier always matches.
func CheckIdentifier(desc ItemDescription, localID, path string) error {
	if desc.ID == "" || desc.ID == localID {
		return nil
	}
	return &MetadataError{
		Kind: IdentifierMismatch,
		Path: path,
		Err:  fmt.Errorf("sidecar id %q does not match file id %q", desc.ID, localID),
	}
}
