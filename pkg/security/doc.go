// Package security provides validation, sanitization, and limits for the delayed package.
//
// This package includes:
//   - Input validation for payload type names, unique keys, and handler size
//   - Error message sanitization before last_error is stored
//   - Clamping for process pool sizes and worker names
//
// Most users should import the root package github.com/jdziat/delayed
// which re-exports these limits.
package security
