// Package core provides the fundamental types and interfaces for the delayed package.
//
// This package contains:
//   - The Job data model with GORM annotations
//   - The Storage interface defining the persistence contract
//   - Optional payload capability interfaces and hook method names
//   - Event types for queue monitoring
//   - Error types for enqueueing, decoding, and invocation
//
// Most users should import the root package github.com/jdziat/delayed
// instead of this package directly.
package core
