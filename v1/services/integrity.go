package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uyenet/membership-backend/v1/database"
	"github.com/uyenet/membership-backend/v1/models"
)

// IntegrityResult reports the outcome of a maintenance pass. Per-record
// failures are collected as strings; a single bad record never aborts the
// pass.
type IntegrityResult struct {
	Cleaned int      `json:"cleaned"`
	Fixed   int      `json:"fixed"`
	Errors  []string `json:"errors,omitempty"`
}

// merge folds another pass result into this one
func (r *IntegrityResult) merge(other IntegrityResult) {
	r.Cleaned += other.Cleaned
	r.Fixed += other.Fixed
	r.Errors = append(r.Errors, other.Errors...)
}

// IntegrityMaintainer finds and resolves duplicate natural keys and repairs
// records missing required fields. Both passes are idempotent and run with
// or without roster connectivity.
type IntegrityMaintainer struct {
	repo database.MemberRepository
}

// NewIntegrityMaintainer creates a new maintainer
func NewIntegrityMaintainer(repo database.MemberRepository) *IntegrityMaintainer {
	return &IntegrityMaintainer{repo: repo}
}

// Run executes the dedup pass followed by the validation pass. The returned
// error reports store-level scan failures only; per-record failures are in
// the result.
func (m *IntegrityMaintainer) Run(ctx context.Context) (IntegrityResult, error) {
	result, dedupErr := m.DedupPass(ctx)
	validated, validateErr := m.ValidationPass(ctx)
	result.merge(validated)
	return result, errors.Join(dedupErr, validateErr)
}

// DedupPass removes records sharing a natural key, keeping the earliest
// created record of each duplicate set. It runs once per key field since a
// record may collide on either.
func (m *IntegrityMaintainer) DedupPass(ctx context.Context) (IntegrityResult, error) {
	result := IntegrityResult{}
	var scanErr error

	for _, field := range []string{database.KeyFieldNationalID, database.KeyFieldRegistrationNo} {
		groups, err := m.repo.FindDuplicateGroups(ctx, field)
		if err != nil {
			scanErr = errors.Join(scanErr, fmt.Errorf("duplicate scan on %s failed: %w", field, err))
			continue
		}

		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			// Groups arrive ordered by created_at ascending; the first
			// record is kept
			keeper := group[0]
			for _, dup := range group[1:] {
				if err := m.repo.Delete(ctx, dup.MemberID); err != nil {
					result.Errors = append(result.Errors,
						fmt.Sprintf("failed to delete duplicate member %s: %v", dup.MemberID, err))
					continue
				}
				result.Cleaned++
				slog.Info("Removed duplicate member",
					"deleted", dup.MemberID,
					"kept", keeper.MemberID,
					"keyField", field)
			}
		}
	}

	return result, scanErr
}

// ValidationPass assigns defaults to records whose status or provenance is
// missing or unknown, so downstream workflows can still use them
func (m *IntegrityMaintainer) ValidationPass(ctx context.Context) (IntegrityResult, error) {
	result := IntegrityResult{}

	invalid, err := m.repo.FindInvalid(ctx)
	if err != nil {
		return result, fmt.Errorf("invalid record scan failed: %w", err)
	}

	for i := range invalid {
		member := &invalid[i]
		fields := map[string]interface{}{}
		if !member.Status.IsValid() {
			fields["status"] = models.DefaultStatus()
		}
		if !member.Provenance.IsValid() {
			fields["provenance"] = models.DefaultProvenance()
		}
		if len(fields) == 0 {
			continue
		}

		if err := m.repo.UpdateFields(ctx, member.MemberID, fields); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to repair member %s: %v", member.MemberID, err))
			continue
		}
		result.Fixed++
		slog.Info("Repaired member with missing fields", "memberID", member.MemberID)
	}

	return result, nil
}
