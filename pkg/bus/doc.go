// Package bus provides the in-process event bus used by a job suite.
//
// Fire dispatches synchronously on the caller's goroutine to every matching
// observer in registration order. There is no queue and no persistence:
// observers must return promptly, and events are lost when the process exits.
package bus
