// Package suite runs a job tree against a session store.
//
// A Suite owns the root job, the store, the event bus and, while executing,
// the shutdown monitor. Execute walks the tree: leaves run their executors,
// sync groups run children in order and stop at the first failure, async
// groups run children on a bounded worker pool and report failures once every
// child has finished.
//
// Every job's status record is persisted on each change. A job whose record
// is COMPLETED is skipped; any other non-fresh record is archived as a prior
// attempt and the job is resumed.
//
// Stopping is cooperative. Stop, a canceled Execute context, or a sentinel
// file created by shutdown.Signal flags every running job, closes its
// Updater.Stopping channel and cancels its context. Execute returns once the
// jobs have honored the request.
package suite
