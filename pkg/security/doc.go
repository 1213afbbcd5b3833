// Package security provides validation, sanitization, and limits for the jobsuite package.
//
// This package includes:
//   - Input validation for job ids and suite namespaces
//   - Error message sanitization before messages are persisted
//   - Clamping functions to enforce safe limits on group concurrency
//   - Security-related constants defining maximum sizes and counts
//
// Most users should import the root package github.com/jdziat/jobsuite
// which re-exports these functions.
package security
