// Package handler provides internal reflection-based invocation of job
// functions registered by kind.
//
// This package is internal and should not be imported directly.
// It provides:
//   - Handler: signature metadata for a registered job function
//   - Argument decoding from the untyped "with" block of a definition
//   - An Executor adapter binding a handler to decoded arguments
package handler
