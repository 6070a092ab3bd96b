// Package meta is the local sqlite bookkeeping database: a ledger of
// scheduled job runs and advisory locks preventing two runners from
// aggregating the same (client, range, dimension) at once.
package meta

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Job run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// JobRun records one execution of a scheduled job.
type JobRun struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	JobName    string `gorm:"index;not null"`
	ClientID   string `gorm:"index"`
	StartDate  string
	EndDate    string
	Status     string `gorm:"not null"`
	Error      string
	StartedAt  time.Time `gorm:"not null"`
	FinishedAt time.Time
}

// AggregationLock is an advisory lock row; the unique key makes acquisition
// atomic.
type AggregationLock struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Key        string    `gorm:"uniqueIndex;not null"`
	AcquiredAt time.Time `gorm:"not null"`
}

// DB wraps the gorm handle.
type DB struct {
	db         *gorm.DB
	logger     *slog.Logger
	staleAfter time.Duration
}

// Open connects to the sqlite meta database and migrates its tables.
func Open(path string, staleAfter time.Duration, log *slog.Logger) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open meta database: %w", err)
	}
	if err := db.AutoMigrate(&JobRun{}, &AggregationLock{}); err != nil {
		return nil, fmt.Errorf("migrate meta database: %w", err)
	}
	return &DB{db: db, logger: log, staleAfter: staleAfter}, nil
}

// LockKey builds the advisory lock key for one aggregation unit.
func LockKey(clientID, startDate, endDate, dimension string) string {
	return strings.Join([]string{clientID, startDate, endDate, dimension}, "|")
}

// Acquire attempts to take the advisory lock. It returns false when another
// runner holds a fresh lock; stale locks (older than staleAfter, e.g. a
// crashed runner) are taken over.
func (m *DB) Acquire(key string) (bool, error) {
	now := time.Now().UTC()

	// Reap a stale holder first so the insert below can succeed.
	if m.staleAfter > 0 {
		cutoff := now.Add(-m.staleAfter)
		if err := m.db.Where("key = ? AND acquired_at < ?", key, cutoff).
			Delete(&AggregationLock{}).Error; err != nil {
			return false, fmt.Errorf("reap stale lock: %w", err)
		}
	}

	result := m.db.Create(&AggregationLock{Key: key, AcquiredAt: now})
	if result.Error != nil {
		if strings.Contains(strings.ToLower(result.Error.Error()), "unique") {
			return false, nil
		}
		return false, fmt.Errorf("acquire lock %s: %w", key, result.Error)
	}
	return true, nil
}

// Release drops the advisory lock.
func (m *DB) Release(key string) error {
	if err := m.db.Where("key = ?", key).Delete(&AggregationLock{}).Error; err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// StartRun records the beginning of a job execution and returns the ledger
// row for completion.
func (m *DB) StartRun(jobName, clientID, startDate, endDate string) (*JobRun, error) {
	run := &JobRun{
		JobName:   jobName,
		ClientID:  clientID,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := m.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("record job start: %w", err)
	}
	return run, nil
}

// FinishRun completes a ledger row with the outcome.
func (m *DB) FinishRun(run *JobRun, runErr error) {
	run.FinishedAt = time.Now().UTC()
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	} else {
		run.Status = StatusSucceeded
	}
	if err := m.db.Save(run).Error; err != nil {
		m.logger.Warn("Failed to update job run ledger", slog.Any("error", err))
	}
}

// RecentRuns returns the latest ledger entries, newest first.
func (m *DB) RecentRuns(limit int) ([]JobRun, error) {
	var runs []JobRun
	err := m.db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	return runs, nil
}
