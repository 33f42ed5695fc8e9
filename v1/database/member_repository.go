package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/uyenet/membership-backend/v1/models"
)

// Natural key columns accepted by FindDuplicateGroups
const (
	KeyFieldNationalID     = "national_id"
	KeyFieldRegistrationNo = "registration_no"
)

// ErrUnknownKeyField is returned when a duplicate scan is requested for a
// column that is not a natural key
var ErrUnknownKeyField = errors.New("unknown natural key field")

// MemberRepository defines the database-agnostic interface for membership
// record operations used by the sync engine and the member workflows
type MemberRepository interface {
	// FindByNaturalKeys returns the record matching either non-empty natural
	// key, or nil when no record matches
	FindByNaturalKeys(ctx context.Context, nationalID, registrationNo string) (*models.Member, error)

	// Create persists a new membership record after identity validation
	Create(ctx context.Context, member *models.Member) error

	// UpdateFields applies a partial update to the record with the given ID
	UpdateFields(ctx context.Context, memberID string, fields map[string]interface{}) error

	// Delete removes the record with the given ID
	Delete(ctx context.Context, memberID string) error

	// FindDuplicateGroups returns groups of records sharing the same non-empty
	// value of the given natural key column, each group ordered by creation
	// time ascending
	FindDuplicateGroups(ctx context.Context, keyField string) ([][]models.Member, error)

	// FindInvalid returns records whose status or provenance is missing or
	// outside the known enum values
	FindInvalid(ctx context.Context) ([]models.Member, error)

	// FindApprovedUnsynced returns approved records not yet pushed to the sheet
	FindApprovedUnsynced(ctx context.Context) ([]models.Member, error)

	// Count returns the total number of membership records
	Count(ctx context.Context) (int64, error)
}

// GormMemberRepository implements MemberRepository using GORM
// (works with SQLite or PostgreSQL)
type GormMemberRepository struct {
	db *gorm.DB
}

// NewGormMemberRepository creates a new repository
func NewGormMemberRepository(db *gorm.DB) *GormMemberRepository {
	return &GormMemberRepository{db: db}
}

// FindByNaturalKeys looks up a record by national ID or registration number,
// filtering out keys that are empty in the candidate
func (r *GormMemberRepository) FindByNaturalKeys(ctx context.Context, nationalID, registrationNo string) (*models.Member, error) {
	if nationalID == "" && registrationNo == "" {
		return nil, models.ErrNoNaturalKey
	}

	query := r.db.WithContext(ctx)
	switch {
	case nationalID != "" && registrationNo != "":
		query = query.Where("national_id = ? OR registration_no = ?", nationalID, registrationNo)
	case nationalID != "":
		query = query.Where("national_id = ?", nationalID)
	default:
		query = query.Where("registration_no = ?", registrationNo)
	}

	var member models.Member
	if err := query.First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up member by natural keys: %w", err)
	}
	return &member, nil
}

// Create persists a new membership record
func (r *GormMemberRepository) Create(ctx context.Context, member *models.Member) error {
	if err := member.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// UpdateFields applies a partial update to a membership record
func (r *GormMemberRepository) UpdateFields(ctx context.Context, memberID string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Member{}).
		Where("member_id = ?", memberID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update member %s: %w", memberID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("member %s not found", memberID)
	}
	return nil
}

// Delete removes a membership record
func (r *GormMemberRepository) Delete(ctx context.Context, memberID string) error {
	if err := r.db.WithContext(ctx).Delete(&models.Member{}, "member_id = ?", memberID).Error; err != nil {
		return fmt.Errorf("failed to delete member %s: %w", memberID, err)
	}
	return nil
}

// FindDuplicateGroups returns groups of records colliding on a natural key
func (r *GormMemberRepository) FindDuplicateGroups(ctx context.Context, keyField string) ([][]models.Member, error) {
	if keyField != KeyFieldNationalID && keyField != KeyFieldRegistrationNo {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeyField, keyField)
	}

	var keys []string
	err := r.db.WithContext(ctx).Model(&models.Member{}).
		Select(keyField).
		Where(keyField+" <> ''").
		Group(keyField).
		Having("COUNT(*) > 1").
		Pluck(keyField, &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicate %s values: %w", keyField, err)
	}

	groups := make([][]models.Member, 0, len(keys))
	for _, key := range keys {
		var group []models.Member
		err := r.db.WithContext(ctx).
			Where(keyField+" = ?", key).
			Order("created_at ASC").
			Find(&group).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load duplicate group for %s=%s: %w", keyField, key, err)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// FindInvalid returns records with a missing or unknown status or provenance
func (r *GormMemberRepository) FindInvalid(ctx context.Context) ([]models.Member, error) {
	validStatuses := []string{string(models.StatusPending), string(models.StatusApproved), string(models.StatusRejected)}
	validProvenances := []string{
		string(models.ProvenanceWebsite), string(models.ProvenanceImport),
		string(models.ProvenanceManual), string(models.ProvenanceUnknown),
	}

	var invalid []models.Member
	err := r.db.WithContext(ctx).
		Where("status IS NULL OR status NOT IN ? OR provenance IS NULL OR provenance NOT IN ?",
			validStatuses, validProvenances).
		Find(&invalid).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find invalid members: %w", err)
	}
	return invalid, nil
}

// FindApprovedUnsynced returns approved records not yet pushed to the sheet
func (r *GormMemberRepository) FindApprovedUnsynced(ctx context.Context) ([]models.Member, error) {
	var members []models.Member
	err := r.db.WithContext(ctx).
		Where("status = ? AND synced_to_sheet = ?", models.StatusApproved, false).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find approved unsynced members: %w", err)
	}
	return members, nil
}

// Count returns the total number of membership records
func (r *GormMemberRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Member{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}
