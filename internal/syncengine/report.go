package syncengine

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"imagepush/internal/sidecar"
)

// ItemFailure records one item that did not reach the ledger.
type ItemFailure struct {
	ID   string
	Kind string
	Err  error
}

// Report summarizes a run.
type Report struct {
	RunID     string
	Total     int
	Pending   int
	Published int
	Failed    int
	Skipped   int
	Failures  []ItemFailure
	Duration  time.Duration
}

// PendingLine formats the delta summary.
func PendingLine(pending, total int) string {
	return fmt.Sprintf("%d of %d images not in the API", pending, total)
}

// TextReporter writes progress lines to W.
type TextReporter struct {
	W     io.Writer
	Color bool

	mu sync.Mutex
}

// NewTextReporter returns a reporter that writes plain or coloured lines.
func NewTextReporter(w io.Writer, color bool) *TextReporter {
	return &TextReporter{W: w, Color: color}
}

func (r *TextReporter) Pending(pending, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.W, PendingLine(pending, total))
}

func (r *TextReporter) Publishing(id string, desc sidecar.ItemDescription) {
	label := id
	if title := strings.TrimSpace(desc.Title); title != "" {
		label = fmt.Sprintf("%s (%s)", id, title)
	}
	prefix := "Pushing"
	if r.Color {
		prefix = "\x1b[36mPushing\x1b[0m"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.W, "%s %s\n", prefix, label)
}
