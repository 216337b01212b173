package syncengine

import (
	"errors"
	"fmt"
	"strings"
)

// FailurePolicy selects how item-scoped failures affect a run.
type FailurePolicy string

const (
	// FailAbort stops the run at the first metadata or publish failure.
	FailAbort FailurePolicy = "abort"
	// FailSkip logs the failure and continues with the remaining items.
	FailSkip FailurePolicy = "skip"
)

// SidecarIDPolicy selects how a sidecar identifier that differs from the
// file name is treated.
type SidecarIDPolicy string

const (
	SidecarIDReject SidecarIDPolicy = "reject"
	SidecarIDTrust  SidecarIDPolicy = "trust"
)

// Options configures one engine.
type Options struct {
	Root            string
	TagPrefix       string
	FailurePolicy   FailurePolicy
	Concurrency     int
	SidecarIDCheck  SidecarIDPolicy
	ImageExtensions []string
}

// DefaultImageExtensions lists the payload extensions probed for each item, in order.
func DefaultImageExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif"}
}

func (o Options) normalized() (Options, error) {
	o.Root = strings.TrimSpace(o.Root)
	if o.Root == "" {
		return o, errors.New("syncengine: root directory is required")
	}
	switch o.FailurePolicy {
	case "":
		o.FailurePolicy = FailAbort
	case FailAbort, FailSkip:
	default:
		return o, fmt.Errorf("syncengine: unknown failure policy %q", o.FailurePolicy)
	}
	switch o.SidecarIDCheck {
	case "":
		o.SidecarIDCheck = SidecarIDReject
	case SidecarIDReject, SidecarIDTrust:
	default:
		return o, fmt.Errorf("syncengine: unknown sidecar id policy %q", o.SidecarIDCheck)
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if len(o.ImageExtensions) == 0 {
		o.ImageExtensions = DefaultImageExtensions()
	}
	return o, nil
}

// PrefixTags joins prefix and each tag with a colon. An empty prefix leaves
// tags unchanged.
func PrefixTags(prefix string, tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if prefix == "" {
			out = append(out, tag)
			continue
		}
		out = append(out, prefix+":"+tag)
	}
	return out
}
