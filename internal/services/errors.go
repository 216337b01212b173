package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMetadata      = errors.New("metadata error")
	ErrPublish       = errors.New("publish error")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrUsage         = errors.New("usage error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsItemScoped reports whether err aborts only the item it occurred on. Metadata
// and publish failures qualify; duplicate keys never do because they signal a
// concurrent writer or a broken delta.
func IsItemScoped(err error) bool {
	if err == nil || errors.Is(err, ErrDuplicateKey) {
		return false
	}
	return errors.Is(err, ErrMetadata) || errors.Is(err, ErrPublish)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
