package core

import (
	"context"
	"time"
)

// Store defines the persistence layer for status records.
//
// Records are keyed by (namespace, job id). Writes for one key are totally
// ordered; writes for different keys never contend.
type Store interface {
	// Write persists the current attempt of status.
	Write(ctx context.Context, namespace string, status *Status) error

	// Read loads the current record plus its archived attempts, oldest first.
	// A job with no data yields a fresh IDLE record and a nil error.
	Read(ctx context.Context, namespace, jobID string) (*Status, error)

	// Remove deletes the current record and its archived attempts.
	Remove(ctx context.Context, namespace, jobID string) error

	// Archive moves the current record into the next numbered attempt slot and
	// returns that number. It returns 0 when there is no current record.
	Archive(ctx context.Context, namespace, jobID string) (int, error)

	// Touch refreshes the liveness timestamp without rewriting the record.
	Touch(ctx context.Context, namespace, jobID string) (time.Time, error)

	// Backup relocates every record of namespace to a timestamped archive and
	// returns the archive location.
	Backup(ctx context.Context, namespace string, at time.Time) (string, error)

	// List returns the job ids that have a current record in namespace.
	List(ctx context.Context, namespace string) ([]string, error)

	Close() error
}
