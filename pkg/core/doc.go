// Package core provides the fundamental types and interfaces for the jobsuite package.
//
// This package contains:
//   - Status, the durable snapshot of one job attempt, and its State machine
//   - Properties, the ordered job-owned key/value store carried on a Status
//   - Event and the event names fired on the suite's event bus
//   - Error types for construction, execution, group, persistence and shutdown failures
//   - Store, the persistence contract implemented by pkg/storage
//
// Most users should import the root package github.com/jdziat/jobsuite
// instead of this package directly.
package core
