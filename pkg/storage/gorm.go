package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/security"
)

// statusRow is the table layout of GormStore. Attempt 0 is the current
// attempt; archived attempts are numbered from 1 in creation order.
type statusRow struct {
	ID            uint   `gorm:"primaryKey"`
	Namespace     string `gorm:"size:255;not null;uniqueIndex:idx_job_status_key,priority:1"`
	JobID         string `gorm:"size:255;not null;uniqueIndex:idx_job_status_key,priority:2"`
	Attempt       int    `gorm:"not null;default:0;uniqueIndex:idx_job_status_key,priority:3"`
	State         string `gorm:"size:16;not null"`
	Progress      float64
	Note          string `gorm:"type:text"`
	StartTime     *time.Time
	EndTime       *time.Time
	LastActivity  *time.Time
	StopRequested bool
	Error         string `gorm:"type:text"`
	Properties    string `gorm:"type:text"`
	UpdatedAt     time.Time
}

func (statusRow) TableName() string { return "job_statuses" }

// GormStore implements core.Store on any GORM dialect.
type GormStore struct {
	db    *gorm.DB
	locks *KeyLock
}

var _ core.Store = (*GormStore)(nil)

// NewGormStore creates a GORM-backed store. Call Migrate before first use.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, locks: NewKeyLock()}
}

// DB returns the underlying database handle.
func (s *GormStore) DB() *gorm.DB { return s.db }

// IsSQLite reports whether the store runs on SQLite.
func (s *GormStore) IsSQLite() bool {
	return s.db != nil && s.db.Dialector != nil && s.db.Dialector.Name() == "sqlite"
}

// Migrate creates the necessary tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&statusRow{})
}

// Write upserts the current attempt of status.
func (s *GormStore) Write(ctx context.Context, namespace string, status *core.Status) error {
	if status == nil {
		return &core.PersistenceError{Op: "write", Namespace: namespace, Err: errors.New("status is nil")}
	}
	if err := validateKey(namespace, status.JobID); err != nil {
		return &core.PersistenceError{Op: "write", Namespace: namespace, JobID: status.JobID, Err: err}
	}
	row, err := toRow(namespace, 0, status)
	if err != nil {
		return &core.PersistenceError{Op: "write", Namespace: namespace, JobID: status.JobID, Err: err}
	}

	unlock := s.locks.Lock(storageKey(namespace, status.JobID))
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "namespace"}, {Name: "job_id"}, {Name: "attempt"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"state", "progress", "note", "start_time", "end_time", "last_activity",
				"stop_requested", "error", "properties", "updated_at",
			}),
		}).Create(row).Error
	})
	if err != nil {
		return &core.PersistenceError{Op: "write", Namespace: namespace, JobID: status.JobID, Err: err}
	}
	return nil
}

// Read loads the current attempt and archived attempts. A job with no rows
// yields a fresh record.
func (s *GormStore) Read(ctx context.Context, namespace, jobID string) (*core.Status, error) {
	if err := validateKey(namespace, jobID); err != nil {
		return nil, &core.PersistenceError{Op: "read", Namespace: namespace, JobID: jobID, Err: err}
	}

	var rows []statusRow
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND job_id = ?", namespace, jobID).
		Order("attempt ASC").
		Find(&rows).Error
	if err != nil {
		return nil, &core.PersistenceError{Op: "read", Namespace: namespace, JobID: jobID, Err: err}
	}

	current := core.NewStatus(jobID)
	for i := range rows {
		st, err := fromRow(&rows[i])
		if err != nil {
			return nil, &core.PersistenceError{Op: "read", Namespace: namespace, JobID: jobID, Err: err}
		}
		if rows[i].Attempt == 0 {
			st.PriorAttempts = current.PriorAttempts
			current = st
			continue
		}
		current.PriorAttempts = append(current.PriorAttempts, st)
	}
	return current, nil
}

// Remove deletes the current attempt and every archived attempt.
func (s *GormStore) Remove(ctx context.Context, namespace, jobID string) error {
	if err := validateKey(namespace, jobID); err != nil {
		return &core.PersistenceError{Op: "remove", Namespace: namespace, JobID: jobID, Err: err}
	}

	unlock := s.locks.Lock(storageKey(namespace, jobID))
	defer unlock()

	err := s.db.WithContext(ctx).
		Where("namespace = ? AND job_id = ?", namespace, jobID).
		Delete(&statusRow{}).Error
	if err != nil {
		return &core.PersistenceError{Op: "remove", Namespace: namespace, JobID: jobID, Err: err}
	}
	return nil
}

// Archive renumbers the current attempt to the next free attempt number.
func (s *GormStore) Archive(ctx context.Context, namespace, jobID string) (int, error) {
	if err := validateKey(namespace, jobID); err != nil {
		return 0, &core.PersistenceError{Op: "archive", Namespace: namespace, JobID: jobID, Err: err}
	}

	unlock := s.locks.Lock(storageKey(namespace, jobID))
	defer unlock()

	var next int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current statusRow
		result := tx.Where("namespace = ? AND job_id = ? AND attempt = 0", namespace, jobID).Limit(1).Find(&current)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		var max int
		if err := tx.Model(&statusRow{}).
			Where("namespace = ? AND job_id = ?", namespace, jobID).
			Select("COALESCE(MAX(attempt), 0)").
			Scan(&max).Error; err != nil {
			return err
		}
		next = max + 1
		return tx.Model(&statusRow{}).Where("id = ?", current.ID).Update("attempt", next).Error
	})
	if err != nil {
		return 0, &core.PersistenceError{Op: "archive", Namespace: namespace, JobID: jobID, Err: err}
	}
	return next, nil
}

// Touch updates last_activity of the current attempt only.
func (s *GormStore) Touch(ctx context.Context, namespace, jobID string) (time.Time, error) {
	if err := validateKey(namespace, jobID); err != nil {
		return time.Time{}, &core.PersistenceError{Op: "touch", Namespace: namespace, JobID: jobID, Err: err}
	}

	unlock := s.locks.Lock(storageKey(namespace, jobID))
	defer unlock()

	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&statusRow{}).
		Where("namespace = ? AND job_id = ? AND attempt = 0", namespace, jobID).
		UpdateColumn("last_activity", now)
	if result.Error != nil {
		return time.Time{}, &core.PersistenceError{Op: "touch", Namespace: namespace, JobID: jobID, Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return time.Time{}, &core.PersistenceError{Op: "touch", Namespace: namespace, JobID: jobID, Err: core.ErrUnknownJob}
	}
	return now, nil
}

// List returns the ids of jobs with a current attempt, sorted.
func (s *GormStore) List(ctx context.Context, namespace string) ([]string, error) {
	if err := security.ValidateNamespace(namespace); err != nil {
		return nil, &core.PersistenceError{Op: "list", Namespace: namespace, Err: err}
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&statusRow{}).
		Where("namespace = ? AND attempt = 0", namespace).
		Order("job_id ASC").
		Pluck("job_id", &ids).Error
	if err != nil {
		return nil, &core.PersistenceError{Op: "list", Namespace: namespace, Err: err}
	}
	return ids, nil
}

// backupSeparator joins a namespace and a backup timestamp. Valid namespaces
// never contain it.
const backupSeparator = "@"

// Backup moves every row of namespace to the namespace
// "<namespace>@<timestamp>" in one transaction and returns that name.
func (s *GormStore) Backup(ctx context.Context, namespace string, at time.Time) (string, error) {
	if err := security.ValidateNamespace(namespace); err != nil {
		return "", &core.PersistenceError{Op: "backup", Namespace: namespace, Err: err}
	}
	target := namespace + backupSeparator + at.UTC().Format(BackupTimeFormat)

	var moved int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&statusRow{}).Where("namespace = ?", target).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("backup %s already exists", target)
		}
		result := tx.Model(&statusRow{}).Where("namespace = ?", namespace).Update("namespace", target)
		moved = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return "", &core.PersistenceError{Op: "backup", Namespace: namespace, Err: err}
	}
	if moved == 0 {
		return "", nil
	}
	return target, nil
}

// Backups returns the backup namespaces of namespace, newest first.
func (s *GormStore) Backups(ctx context.Context, namespace string) ([]string, error) {
	if err := security.ValidateNamespace(namespace); err != nil {
		return nil, &core.PersistenceError{Op: "backups", Namespace: namespace, Err: err}
	}
	var names []string
	err := s.db.WithContext(ctx).
		Model(&statusRow{}).
		Distinct("namespace").
		Where("namespace LIKE ?", namespace+backupSeparator+"%").
		Pluck("namespace", &names).Error
	if err != nil {
		return nil, &core.PersistenceError{Op: "backups", Namespace: namespace, Err: err}
	}
	// LIKE treats "_" as a wildcard, so recheck the literal prefix
	out := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, namespace+backupSeparator) {
			out = append(out, n)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// Prune deletes all but the newest keep backups of namespace.
func (s *GormStore) Prune(ctx context.Context, namespace string, keep int) ([]string, error) {
	backups, err := s.Backups(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(backups) <= keep {
		return nil, nil
	}
	stale := backups[keep:]
	err = s.db.WithContext(ctx).Where("namespace IN ?", stale).Delete(&statusRow{}).Error
	if err != nil {
		return nil, &core.PersistenceError{Op: "prune", Namespace: namespace, Err: err}
	}
	return stale, nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(namespace string, attempt int, s *core.Status) (*statusRow, error) {
	props, err := json.Marshal(s.Properties)
	if err != nil {
		return nil, fmt.Errorf("encode properties: %w", err)
	}
	return &statusRow{
		Namespace:     namespace,
		JobID:         s.JobID,
		Attempt:       attempt,
		State:         string(s.State),
		Progress:      s.Progress,
		Note:          s.Note,
		StartTime:     timePtr(s.StartTime),
		EndTime:       timePtr(s.EndTime),
		LastActivity:  timePtr(s.LastActivity),
		StopRequested: s.StopRequested,
		Error:         s.Error,
		Properties:    string(props),
		UpdatedAt:     time.Now(),
	}, nil
}

func fromRow(r *statusRow) (*core.Status, error) {
	state, err := core.ParseState(r.State)
	if err != nil {
		return nil, err
	}
	st := &core.Status{
		JobID:         r.JobID,
		State:         state,
		Progress:      core.ClampProgress(r.Progress),
		Note:          r.Note,
		StartTime:     timeVal(r.StartTime),
		EndTime:       timeVal(r.EndTime),
		LastActivity:  timeVal(r.LastActivity),
		StopRequested: r.StopRequested,
		Error:         r.Error,
	}
	if r.Properties != "" {
		if err := json.Unmarshal([]byte(r.Properties), &st.Properties); err != nil {
			return nil, fmt.Errorf("%w: properties: %v", core.ErrCorruptRecord, err)
		}
	}
	return st, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
