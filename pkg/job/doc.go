// Package job defines the job tree executed by a suite.
//
// A tree is built from three node kinds:
//   - Leaf wraps an Executor, the unit of work
//   - Sync runs its children in order and stops at the first failure
//   - Async runs its children on a bounded worker pool and fails after all finish
//
// Job bodies receive an Updater, the only handle through which they may
// change their own status record.
package job
