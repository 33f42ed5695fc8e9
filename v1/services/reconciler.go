package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uyenet/membership-backend/v1/database"
	"github.com/uyenet/membership-backend/v1/models"
)

// Fixed positional roster row schema. Existing rosters depend on this column
// order; do not reorder.
const (
	colFullName       = 0
	colNationalID     = 1
	colRegistrationNo = 2
	colPhone          = 3
	colDepartment     = 4
	colPaymentMarker  = 5
	colDate           = 6

	rosterRowWidth = 7
)

// ReconcileAction is the decision taken for one external row
type ReconcileAction string

const (
	ActionCreate ReconcileAction = "create"
	ActionUpdate ReconcileAction = "update"
	ActionSkip   ReconcileAction = "skip"
)

// RecordReconciler matches external roster rows to local records by natural
// key and applies the merge policy (external data wins for roster-sourced
// fields, local workflow fields are preserved)
type RecordReconciler struct {
	repo   database.MemberRepository
	roster RosterClient

	// now is injectable for tests
	now func() time.Time
}

// NewRecordReconciler creates a new reconciler
func NewRecordReconciler(repo database.MemberRepository, roster RosterClient) *RecordReconciler {
	return &RecordReconciler{repo: repo, roster: roster, now: time.Now}
}

// rowCol returns the trimmed value of a column, or "" when the row is short
func rowCol(row []string, idx int) string {
	if idx < len(row) {
		return strings.TrimSpace(row[idx])
	}
	return ""
}

// ReconcileRow processes one external roster row: creates a local record,
// refreshes an existing one, or skips the row when it carries no usable
// identity. The returned error never aborts the run; callers record it and
// continue with the next row.
func (r *RecordReconciler) ReconcileRow(ctx context.Context, row []string) (ReconcileAction, *models.Member, error) {
	candidate := models.Member{
		FullName:       rowCol(row, colFullName),
		NationalID:     rowCol(row, colNationalID),
		RegistrationNo: rowCol(row, colRegistrationNo),
		Phone:          rowCol(row, colPhone),
		Department:     rowCol(row, colDepartment),
	}

	if !candidate.HasNaturalKey() {
		return ActionSkip, nil, fmt.Errorf("row for %q has no unique identifier", candidate.FullName)
	}

	existing, err := r.repo.FindByNaturalKeys(ctx, candidate.NationalID, candidate.RegistrationNo)
	if err != nil {
		return ActionSkip, nil, err
	}

	now := r.now().UTC()

	if existing != nil {
		fields := map[string]interface{}{}
		if candidate.FullName != "" && candidate.FullName != existing.FullName {
			fields["full_name"] = candidate.FullName
		}
		if candidate.NationalID != "" && candidate.NationalID != existing.NationalID {
			fields["national_id"] = candidate.NationalID
		}
		if candidate.RegistrationNo != "" && candidate.RegistrationNo != existing.RegistrationNo {
			fields["registration_no"] = candidate.RegistrationNo
		}
		if candidate.Phone != "" && candidate.Phone != existing.Phone {
			fields["phone"] = candidate.Phone
		}
		if candidate.Department != "" && candidate.Department != existing.Department {
			fields["department"] = candidate.Department
		}
		// Status and provenance belong to local workflows; provenance is
		// only stamped when the record never had one
		if existing.Provenance == "" {
			fields["provenance"] = models.ProvenanceImport
		}

		// Nothing effective to merge: the row already matches the record
		if len(fields) == 0 {
			return ActionSkip, existing, nil
		}
		fields["last_sheet_update"] = now

		if err := r.repo.UpdateFields(ctx, existing.MemberID, fields); err != nil {
			return ActionSkip, nil, fmt.Errorf("failed to refresh member %s: %w", existing.MemberID, err)
		}
		slog.Debug("Refreshed member from roster row", "memberID", existing.MemberID)
		return ActionUpdate, existing, nil
	}

	// Imported rows are treated as already-vetted members
	member := candidate
	member.MemberID = "mem_" + uuid.New().String()
	member.Status = models.StatusApproved
	member.Provenance = models.ProvenanceImport
	member.SyncedToSheet = true
	member.LastSheetUpdate = &now

	if err := r.repo.Create(ctx, &member); err != nil {
		return ActionSkip, nil, fmt.Errorf("failed to import roster row for %q: %w", member.FullName, err)
	}
	slog.Debug("Imported member from roster row", "memberID", member.MemberID)
	return ActionCreate, &member, nil
}

// PushMember appends an approved, not-yet-synced local record to the
// external roster and then marks it synced. This is at-least-once: a crash
// between the append and the local flag update can duplicate the external
// row on the next run.
func (r *RecordReconciler) PushMember(ctx context.Context, member *models.Member) error {
	row := memberToRow(member)
	if err := r.roster.Append(ctx, row); err != nil {
		return fmt.Errorf("failed to append member %s to roster: %w", member.MemberID, err)
	}

	now := r.now().UTC()
	fields := map[string]interface{}{
		"synced_to_sheet":   true,
		"last_sheet_update": now,
	}
	if err := r.repo.UpdateFields(ctx, member.MemberID, fields); err != nil {
		return fmt.Errorf("failed to mark member %s as synced: %w", member.MemberID, err)
	}

	slog.Info("Pushed member to roster", "memberID", member.MemberID)
	return nil
}

// memberToRow serializes a member into the fixed positional row schema
func memberToRow(member *models.Member) []string {
	row := make([]string, rosterRowWidth)
	row[colFullName] = member.FullName
	row[colNationalID] = member.NationalID
	row[colRegistrationNo] = member.RegistrationNo
	row[colPhone] = member.Phone
	row[colDepartment] = member.Department
	row[colPaymentMarker] = ""
	row[colDate] = member.CreatedAt.Format("2006-01-02")
	return row
}
