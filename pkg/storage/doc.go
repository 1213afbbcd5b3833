// Package storage provides the session stores that persist job status records.
//
// This package includes:
//   - FileStore: one YAML record per job on the local filesystem, with
//     numbered attempt files, atomic writes and namespace backups
//   - GormStore: the same contract on any GORM dialect (SQLite, PostgreSQL)
//   - KeyLock: per-(namespace, job id) mutual exclusion for writers
//   - Retry: exponential backoff for transient write failures
//
// The Store interface is defined in pkg/core.
package storage
