// Package security provides validation, sanitization, and limits for the delayed package.
package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/delayed/pkg/core"
)

// Security limits and configuration
const (
	// MaxTypeNameLength is the maximum length for registered payload type names
	MaxTypeNameLength = 255

	// MaxHandlerSize is the maximum size in bytes for an encoded handler (1MB)
	MaxHandlerSize = 1 << 20

	// MaxProcesses is the hard limit for worker processes started by one pool
	MaxProcesses = 256

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096

	// MaxUniqueKeyLength is the maximum length for unique keys
	MaxUniqueKeyLength = 255

	// MaxWorkerNameLength is the maximum length stored in locked_by
	MaxWorkerNameLength = 255
)

// validTypeName matches alphanumeric, hyphens, underscores, and dots
var validTypeName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateTypeName validates a payload type name
func ValidateTypeName(name string) error {
	if name == "" {
		return core.ErrInvalidTypeName
	}
	if len(name) > MaxTypeNameLength {
		return core.ErrTypeNameTooLong
	}
	if !validTypeName.MatchString(name) {
		return core.ErrInvalidTypeName
	}
	return nil
}

// ValidateHandlerSize rejects encoded handlers above MaxHandlerSize
func ValidateHandlerSize(handler string) error {
	if len(handler) > MaxHandlerSize {
		return core.ErrHandlerTooLarge
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
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

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// TruncateWorkerName keeps worker names within the locked_by column size
func TruncateWorkerName(name string) string {
	if len(name) <= MaxWorkerNameLength {
		return name
	}
	return name[:MaxWorkerNameLength]
}

// ValidateUniqueKey validates a unique key length
func ValidateUniqueKey(key string) error {
	if len(key) > MaxUniqueKeyLength {
		return core.ErrUniqueKeyTooLong
	}
	return nil
}
