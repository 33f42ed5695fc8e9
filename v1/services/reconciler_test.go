package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uyenet/membership-backend/v1/database"
	"github.com/uyenet/membership-backend/v1/models"
)

func newTestReconciler(t *testing.T) (*RecordReconciler, database.MemberRepository, *fakeRoster) {
	db := SetupSQLiteTestDB(t)
	repo := database.NewGormMemberRepository(db)
	roster := &fakeRoster{}
	return NewRecordReconciler(repo, roster), repo, roster
}

func TestReconcileRow_CreatesNewMember(t *testing.T) {
	// Arrange
	reconciler, repo, _ := newTestReconciler(t)
	row := []string{"Ayşe Yılmaz", "12345678901", "REG-001", "+905551112233", "Engineering", "x", "2026-01-15"}

	// Act
	action, member, err := reconciler.ReconcileRow(context.Background(), row)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, action)
	require.NotNil(t, member)
	assert.Contains(t, member.MemberID, "mem_")
	assert.Equal(t, "Ayşe Yılmaz", member.FullName)
	assert.Equal(t, models.StatusApproved, member.Status)
	assert.Equal(t, models.ProvenanceImport, member.Provenance)
	assert.True(t, member.SyncedToSheet)

	stored, err := repo.FindByNaturalKeys(context.Background(), "12345678901", "")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, member.MemberID, stored.MemberID)
}

func TestReconcileRow_UpdatesExistingMember(t *testing.T) {
	// Arrange: a pending website signup that the roster knows with a newer
	// phone number
	reconciler, repo, _ := newTestReconciler(t)
	existing := models.Member{
		MemberID:   "mem_existing",
		FullName:   "Mehmet Demir",
		NationalID: "98765432109",
		Phone:      "+905550000000",
		Status:     models.StatusPending,
		Provenance: models.ProvenanceWebsite,
	}
	require.NoError(t, repo.Create(context.Background(), &existing))

	row := []string{"Mehmet Demir", "98765432109", "REG-042", "+905559999999", "Finance", "", ""}

	// Act
	action, member, err := reconciler.ReconcileRow(context.Background(), row)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, action)
	assert.Equal(t, "mem_existing", member.MemberID)

	stored, err := repo.FindByNaturalKeys(context.Background(), "98765432109", "")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "+905559999999", stored.Phone)
	assert.Equal(t, "REG-042", stored.RegistrationNo)
	assert.Equal(t, "Finance", stored.Department)
	// Local workflow fields survive the merge
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, models.ProvenanceWebsite, stored.Provenance)
	require.NotNil(t, stored.LastSheetUpdate)
}

func TestReconcileRow_EmptyColumnsDoNotErase(t *testing.T) {
	// Arrange: the roster row has no phone, the local record does
	reconciler, repo, _ := newTestReconciler(t)
	existing := models.Member{
		MemberID:   "mem_existing",
		FullName:   "Fatma Kaya",
		NationalID: "11122233344",
		Phone:      "+905551234567",
		Status:     models.StatusApproved,
		Provenance: models.ProvenanceManual,
	}
	require.NoError(t, repo.Create(context.Background(), &existing))

	row := []string{"Fatma Kaya", "11122233344", "", "", "Legal", "", ""}

	// Act
	action, _, err := reconciler.ReconcileRow(context.Background(), row)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, action)

	stored, err := repo.FindByNaturalKeys(context.Background(), "11122233344", "")
	require.NoError(t, err)
	assert.Equal(t, "+905551234567", stored.Phone)
	assert.Equal(t, "Legal", stored.Department)
}

func TestReconcileRow_SkipsRowWithoutNaturalKey(t *testing.T) {
	reconciler, repo, _ := newTestReconciler(t)
	row := []string{"Anonim Kişi", "", "", "+905550001122", "Unknown", "", ""}

	action, member, err := reconciler.ReconcileRow(context.Background(), row)

	assert.Equal(t, ActionSkip, action)
	assert.Nil(t, member)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no unique identifier")

	count, countErr := repo.Count(context.Background())
	require.NoError(t, countErr)
	assert.Equal(t, int64(0), count)
}

func TestReconcileRow_SecondPassIsNoOp(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)
	row := []string{"Ali Veli", "55566677788", "REG-007", "+905553334455", "Operations", "", ""}

	action, _, err := reconciler.ReconcileRow(context.Background(), row)
	require.NoError(t, err)
	require.Equal(t, ActionCreate, action)

	// The same row again changes nothing
	action, _, err = reconciler.ReconcileRow(context.Background(), row)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, action)
}

func TestReconcileRow_ToleratesShortRows(t *testing.T) {
	reconciler, _, _ := newTestReconciler(t)
	row := []string{"Kısa Satır", "44455566677"}

	action, member, err := reconciler.ReconcileRow(context.Background(), row)

	require.NoError(t, err)
	assert.Equal(t, ActionCreate, action)
	assert.Equal(t, "44455566677", member.NationalID)
	assert.Empty(t, member.Phone)
}

func TestPushMember_AppendsAndMarksSynced(t *testing.T) {
	// Arrange
	reconciler, repo, roster := newTestReconciler(t)
	member := models.Member{
		MemberID:   "mem_push",
		FullName:   "Zeynep Arslan",
		NationalID: "99988877766",
		Phone:      "+905556667788",
		Department: "HR",
		Status:     models.StatusApproved,
		Provenance: models.ProvenanceWebsite,
	}
	require.NoError(t, repo.Create(context.Background(), &member))

	// Act
	err := reconciler.PushMember(context.Background(), &member)

	// Assert
	require.NoError(t, err)
	require.Len(t, roster.appended, 1)

	row := roster.appended[0]
	require.Len(t, row, rosterRowWidth)
	assert.Equal(t, "Zeynep Arslan", row[colFullName])
	assert.Equal(t, "99988877766", row[colNationalID])
	assert.Equal(t, "+905556667788", row[colPhone])
	assert.Equal(t, "HR", row[colDepartment])

	stored, err := repo.FindByNaturalKeys(context.Background(), "99988877766", "")
	require.NoError(t, err)
	assert.True(t, stored.SyncedToSheet)
	require.NotNil(t, stored.LastSheetUpdate)
}

func TestPushMember_AppendFailureLeavesFlagUnset(t *testing.T) {
	reconciler, repo, roster := newTestReconciler(t)
	roster.appendErr = &RosterError{Kind: RosterNetwork, Op: "append", Err: assert.AnError}

	member := models.Member{
		MemberID:   "mem_push",
		FullName:   "Zeynep Arslan",
		NationalID: "99988877766",
		Status:     models.StatusApproved,
		Provenance: models.ProvenanceWebsite,
	}
	require.NoError(t, repo.Create(context.Background(), &member))

	err := reconciler.PushMember(context.Background(), &member)

	require.Error(t, err)
	stored, lookupErr := repo.FindByNaturalKeys(context.Background(), "99988877766", "")
	require.NoError(t, lookupErr)
	assert.False(t, stored.SyncedToSheet)
}

func TestMemberToRow_FixedLayout(t *testing.T) {
	created := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	member := &models.Member{
		FullName:       "Test Üye",
		NationalID:     "12312312312",
		RegistrationNo: "REG-100",
		Phone:          "+905551110000",
		Department:     "IT",
	}
	member.CreatedAt = created

	row := memberToRow(member)

	require.Len(t, row, rosterRowWidth)
	assert.Equal(t, "Test Üye", row[colFullName])
	assert.Equal(t, "12312312312", row[colNationalID])
	assert.Equal(t, "REG-100", row[colRegistrationNo])
	assert.Equal(t, "+905551110000", row[colPhone])
	assert.Equal(t, "IT", row[colDepartment])
	assert.Equal(t, "", row[colPaymentMarker])
	assert.Equal(t, "2026-02-10", row[colDate])
}
