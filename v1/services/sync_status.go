package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/uyenet/membership-backend/v1/models"
)

// SyncStatusStore owns the mutable shared state of the sync engine: the
// single in-process "run active" flag, rolling counters, and access to the
// persisted run history. All reads are safe to call concurrently with an
// in-progress run.
type SyncStatusStore struct {
	db      *gorm.DB
	breaker *CircuitBreaker

	mu           sync.Mutex
	isRunning    bool
	lastSyncTime *time.Time
	stats        models.SyncStats
}

// NewSyncStatusStore creates a status store backed by the given database
func NewSyncStatusStore(db *gorm.DB, breaker *CircuitBreaker) *SyncStatusStore {
	return &SyncStatusStore{db: db, breaker: breaker}
}

// TryBegin claims the run guard. It returns false when a run is already in
// progress; at most one run executes at a time, process-wide.
func (s *SyncStatusStore) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return false
	}
	s.isRunning = true
	return true
}

// End releases the run guard
func (s *SyncStatusStore) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRunning = false
}

// Record persists a finalized run and updates the rolling counters
func (s *SyncStatusStore) Record(ctx context.Context, run *models.SyncRun, succeeded bool) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to persist sync run %s: %w", run.RunID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalSyncs++
	if succeeded {
		s.stats.SuccessfulSyncs++
	} else {
		s.stats.FailedSyncs++
	}
	if len(run.Errors) > 0 {
		s.stats.LastError = run.Errors[len(run.Errors)-1]
	}
	started := run.StartedAt
	s.lastSyncTime = &started

	return nil
}

// GetStatus returns the observability snapshot used by status endpoints
func (s *SyncStatusStore) GetStatus() models.SyncStatus {
	s.mu.Lock()
	status := models.SyncStatus{
		IsRunning: s.isRunning,
		Stats:     s.stats,
	}
	if s.lastSyncTime != nil {
		t := *s.lastSyncTime
		status.LastSyncTime = &t
	}
	s.mu.Unlock()

	status.Breaker = s.breaker.Snapshot()
	return status
}

// RecentRuns returns the most recent persisted runs, newest first
func (s *SyncStatusStore) RecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []models.SyncRun
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load sync runs: %w", err)
	}
	return runs, nil
}
