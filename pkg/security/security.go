// Package security provides validation, sanitization, and limits for the jobsuite package.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/jobsuite/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobIDLength is the maximum length for job ids
	MaxJobIDLength = 255

	// MaxNamespaceLength is the maximum length for suite namespaces
	MaxNamespaceLength = 128

	// MaxConcurrency is the hard limit for async group concurrency
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxNoteLength is the maximum length for a status note
	MaxNoteLength = 1024
)

// validJobID matches slash-separated segments of alphanumerics, hyphens,
// underscores and dots, e.g. "nightly/extract.orders".
var validJobID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-\.]*(/[a-zA-Z0-9][a-zA-Z0-9_\-\.]*)*$`)

// validNamespace matches a single path-safe segment
var validNamespace = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateJobID validates a job id
func ValidateJobID(id string) error {
	if id == "" {
		return core.ErrInvalidJobID
	}
	if len(id) > MaxJobIDLength {
		return core.ErrJobIDTooLong
	}
	if !validJobID.MatchString(id) {
		return core.ErrInvalidJobID
	}
	for _, seg := range strings.Split(id, "/") {
		if seg == "." || seg == ".." {
			return core.ErrInvalidJobID
		}
	}
	return nil
}

// ValidateNamespace validates a suite namespace
func ValidateNamespace(ns string) error {
	if ns == "" {
		return core.ErrInvalidNamespace
	}
	if len(ns) > MaxNamespaceLength {
		return core.ErrNamespaceTooLong
	}
	if !validNamespace.MatchString(ns) {
		return core.ErrInvalidNamespace
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	return sanitize(msg, MaxErrorMessageLength)
}

// SanitizeNote strips control characters and truncates a status note
func SanitizeNote(note string) string {
	return sanitize(note, MaxNoteLength)
}

func sanitize(msg string, limit int) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	// Truncate if too long
	if utf8.RuneCountInString(result) > limit {
		runes := []rune(result)
		result = string(runes[:limit-3]) + "..."
	}

	return result
}

// ClampConcurrency ensures async group concurrency is within [1, MaxConcurrency].
// A non-positive n means "one worker per child".
func ClampConcurrency(n, children int) int {
	if n <= 0 || n > children {
		n = children
	}
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
