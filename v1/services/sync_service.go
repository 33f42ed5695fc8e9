package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/uyenet/membership-backend/monitoring"
	"github.com/uyenet/membership-backend/v1/database"
	"github.com/uyenet/membership-backend/v1/models"
)

// ErrSyncInProgress is returned when a run is requested while another run
// holds the process-wide guard
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrLocalStoreUnavailable is returned when the authoritative local store
// cannot be reached; there is no fallback for this case
var ErrLocalStoreUnavailable = errors.New("local store unavailable")

// SyncService is the top-level run controller. It acquires the run guard,
// probes connectivity, chooses full-sync or database-only mode, drives the
// reconciler and the integrity maintainer, and persists the run report.
type SyncService struct {
	repo       database.MemberRepository
	roster     RosterClient
	probe      *ConnectionHealthProbe
	reconciler *RecordReconciler
	maintainer *IntegrityMaintainer
	breaker    *CircuitBreaker
	status     *SyncStatusStore
	retryCfg   RetryConfig
	metrics    *monitoring.SyncMetrics

	// now is injectable for tests
	now func() time.Time
}

// NewSyncService creates the orchestrator. metrics may be nil.
func NewSyncService(repo database.MemberRepository, roster RosterClient, breaker *CircuitBreaker, status *SyncStatusStore, metrics *monitoring.SyncMetrics) *SyncService {
	return &SyncService{
		repo:       repo,
		roster:     roster,
		probe:      NewConnectionHealthProbe(repo, roster),
		reconciler: NewRecordReconciler(repo, roster),
		maintainer: NewIntegrityMaintainer(repo),
		breaker:    breaker,
		status:     status,
		retryCfg:   DefaultRetryConfig(),
		metrics:    metrics,
		now:        time.Now,
	}
}

// syncAttempt collects the outcome of one full-sync attempt. Counts are
// assigned (not accumulated) into the run so a retried attempt does not
// double-count.
type syncAttempt struct {
	created   int
	updated   int
	rowErrors []string
}

// Run executes one reconciliation. It always returns a SyncRun with a mode,
// counts and an error list; the error return is non-nil only when the local
// store is down, the guard is held, or full sync and its maintenance
// fallback both failed.
func (s *SyncService) Run(ctx context.Context, opts models.SyncOptions) (*models.SyncRun, error) {
	if !s.status.TryBegin() {
		return nil, ErrSyncInProgress
	}
	defer s.status.End()

	run := &models.SyncRun{
		RunID:     "run_" + uuid.New().String(),
		StartedAt: s.now().UTC(),
		Errors:    models.StringList{},
	}
	slog.Info("Sync run started", "runID", run.RunID, "pushPending", opts.PushPendingToSheet)

	probe := s.probe.Probe(ctx)
	if !probe.LocalAvailable {
		run.Mode = models.SyncModeDatabaseOnly
		run.AddError(probe.Error)
		s.finalize(ctx, run, false)
		return run, fmt.Errorf("%w: %s", ErrLocalStoreUnavailable, probe.Error)
	}

	if !probe.SheetAvailable {
		// Planned degradation, not a failure response
		run.Mode = models.SyncModeDatabaseOnly
		run.IsFallback = false
		if probe.Error != "" {
			run.AddError(probe.Error)
		}
		maintErr := s.runMaintenance(ctx, run)
		succeeded := maintErr == nil
		s.finalize(ctx, run, succeeded)
		if maintErr != nil {
			return run, maintErr
		}
		return run, nil
	}

	var attempt syncAttempt
	fullErr := s.breaker.Execute(func() error {
		result, err := RetryWithBackoff(ctx, s.retryCfg, "full-sync", func() (syncAttempt, error) {
			return s.fullSync(ctx, opts)
		})
		if err != nil {
			return err
		}
		attempt = result
		return nil
	})

	if fullErr == nil {
		run.Mode = models.SyncModeFull
		run.Created = attempt.created
		run.Updated = attempt.updated
		for _, msg := range attempt.rowErrors {
			run.AddError(msg)
		}
		s.finalize(ctx, run, true)
		return run, nil
	}

	// Degrade to local maintenance; keep the original error in the report
	slog.Warn("Full sync failed, falling back to database-only maintenance",
		"runID", run.RunID, "error", fullErr)
	run.Mode = models.SyncModeDatabaseOnly
	run.IsFallback = true
	run.AddError(fullErr.Error())

	if maintErr := s.runMaintenance(ctx, run); maintErr != nil {
		s.finalize(ctx, run, false)
		return run, fmt.Errorf("full sync failed and fallback maintenance also failed (%v): %w", maintErr, fullErr)
	}

	s.finalize(ctx, run, true)
	return run, nil
}

// fullSync reads every roster row and reconciles it, then optionally pushes
// approved-unsynced local records. Roster-level failures abort the attempt
// (and are retried by the caller); per-record failures are collected and
// processing continues.
func (s *SyncService) fullSync(ctx context.Context, opts models.SyncOptions) (syncAttempt, error) {
	attempt := syncAttempt{}

	rows, err := s.roster.ReadAll(ctx)
	if err != nil {
		return attempt, err
	}

	// The first row is the sheet header
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		action, _, recErr := s.reconciler.ReconcileRow(ctx, row)
		if recErr != nil {
			attempt.rowErrors = append(attempt.rowErrors, fmt.Sprintf("row %d: %v", i+1, recErr))
			continue
		}
		switch action {
		case ActionCreate:
			attempt.created++
		case ActionUpdate:
			attempt.updated++
		}
	}

	if opts.PushPendingToSheet {
		pending, err := s.repo.FindApprovedUnsynced(ctx)
		if err != nil {
			return attempt, err
		}
		for i := range pending {
			if err := ctx.Err(); err != nil {
				return attempt, err
			}
			if err := s.reconciler.PushMember(ctx, &pending[i]); err != nil {
				var rosterErr *RosterError
				if errors.As(err, &rosterErr) {
					// Roster-level failure: abort the attempt so the
					// retry/breaker machinery sees it
					return attempt, err
				}
				attempt.rowErrors = append(attempt.rowErrors,
					fmt.Sprintf("push %s: %v", pending[i].MemberID, err))
			}
		}
	}

	return attempt, nil
}

// runMaintenance executes the integrity maintainer and folds its results
// into the run
func (s *SyncService) runMaintenance(ctx context.Context, run *models.SyncRun) error {
	result, err := s.maintainer.Run(ctx)
	run.Cleaned += result.Cleaned
	run.Validated += result.Fixed
	for _, msg := range result.Errors {
		run.AddError(msg)
	}
	return err
}

// finalize stamps the run, persists it and updates counters and metrics
func (s *SyncService) finalize(ctx context.Context, run *models.SyncRun, succeeded bool) {
	completed := s.now().UTC()
	run.CompletedAt = &completed

	snap := s.breaker.Snapshot()
	run.BreakerState = snap.State
	run.BreakerFailures = snap.ConsecutiveFailures

	if err := s.status.Record(ctx, run, succeeded); err != nil {
		slog.Error("Failed to record sync run", "runID", run.RunID, "error", err)
	}

	if s.metrics != nil {
		s.metrics.RecordRun(ctx, string(run.Mode), run.IsFallback,
			run.Created, run.Updated, run.Cleaned, len(run.Errors))
	}

	slog.Info("Sync run finished",
		"runID", run.RunID,
		"mode", run.Mode,
		"fallback", run.IsFallback,
		"created", run.Created,
		"updated", run.Updated,
		"cleaned", run.Cleaned,
		"validated", run.Validated,
		"errors", len(run.Errors),
		"succeeded", succeeded)
}
