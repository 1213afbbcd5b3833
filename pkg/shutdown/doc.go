// Package shutdown implements the out-of-process stop protocol.
//
// A running suite publishes a status index. Any process may request a stop
// by creating a sentinel file next to it (Signal). The suite's Monitor polls
// for the sentinel, removes it and triggers the stop cascade.
//
// The sentinel path is the index path with its extension replaced by
// ".stop", e.g. /var/lib/jobsuite/nightly.json -> /var/lib/jobsuite/nightly.stop.
package shutdown
