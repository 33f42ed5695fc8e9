package services

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/uyenet/membership-backend/v1/models"
)

// ErrMemberNotFound is returned when a lookup by member ID matches nothing
var ErrMemberNotFound = errors.New("member not found")

// MemberService handles member intake and review workflows
type MemberService struct {
	db *gorm.DB
}

// NewMemberService creates a new member service
func NewMemberService(db *gorm.DB) *MemberService {
	return &MemberService{db: db}
}

// CreateMember registers a new member. Website submissions start in pending
// status and go through review; manual entries by staff are approved
// immediately.
func (s *MemberService) CreateMember(req *models.CreateMemberRequest) (*models.MemberResponse, error) {
	member := models.Member{
		MemberID:       "mem_" + uuid.New().String(),
		FullName:       req.FullName,
		NationalID:     req.NationalID,
		RegistrationNo: req.RegistrationNo,
		Phone:          req.Phone,
		Department:     req.Department,
		Provenance:     req.Provenance,
	}
	if member.Provenance == "" {
		member.Provenance = models.ProvenanceWebsite
	}
	if member.Provenance == models.ProvenanceManual {
		member.Status = models.StatusApproved
	} else {
		member.Status = models.StatusPending
	}

	if err := member.Validate(); err != nil {
		return nil, err
	}

	if err := s.db.Create(&member).Error; err != nil {
		return nil, fmt.Errorf("failed to create member: %w", err)
	}

	slog.Info("Member created", "memberID", member.MemberID, "provenance", member.Provenance, "status", member.Status)

	response := member.ToResponse()
	return &response, nil
}

// GetMember retrieves a member by ID
func (s *MemberService) GetMember(memberID string) (*models.MemberResponse, error) {
	var member models.Member
	err := s.db.First(&member, "member_id = ?", memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load member %s: %w", memberID, err)
	}

	response := member.ToResponse()
	return &response, nil
}

// GetMembers retrieves all members, optionally filtered by status and
// department, newest first
func (s *MemberService) GetMembers(status *models.MemberStatus, department string) ([]models.MemberResponse, error) {
	query := s.db.Order("created_at DESC")
	if status != nil && *status != "" {
		query = query.Where("status = ?", *status)
	}
	if department != "" {
		query = query.Where("department = ?", department)
	}

	var members []models.Member
	if err := query.Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	responses := make([]models.MemberResponse, 0, len(members))
	for _, member := range members {
		responses = append(responses, member.ToResponse())
	}
	return responses, nil
}

// UpdateMember updates the provided fields of an existing member
func (s *MemberService) UpdateMember(memberID string, req *models.UpdateMemberRequest) (*models.MemberResponse, error) {
	var member models.Member
	err := s.db.First(&member, "member_id = ?", memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load member %s: %w", memberID, err)
	}

	if req.FullName != nil {
		member.FullName = *req.FullName
	}
	if req.NationalID != nil {
		member.NationalID = *req.NationalID
	}
	if req.RegistrationNo != nil {
		member.RegistrationNo = *req.RegistrationNo
	}
	if req.Phone != nil {
		member.Phone = *req.Phone
	}
	if req.Department != nil {
		member.Department = *req.Department
	}

	if err := member.Validate(); err != nil {
		return nil, err
	}

	// Contact-detail edits must reach the roster on the next sync
	member.SyncedToSheet = false

	if err := s.db.Save(&member).Error; err != nil {
		return nil, fmt.Errorf("failed to update member %s: %w", memberID, err)
	}

	response := member.ToResponse()
	return &response, nil
}

// SetMemberStatus applies a review decision to a pending member. Approval
// clears the synced flag so the next sync pushes the member to the roster.
func (s *MemberService) SetMemberStatus(memberID string, status models.MemberStatus) (*models.MemberResponse, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid member status: %s", status)
	}

	var member models.Member
	err := s.db.First(&member, "member_id = ?", memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load member %s: %w", memberID, err)
	}

	member.Status = status
	if status == models.StatusApproved {
		member.SyncedToSheet = false
	}

	if err := s.db.Save(&member).Error; err != nil {
		return nil, fmt.Errorf("failed to update member %s status: %w", memberID, err)
	}

	slog.Info("Member status updated", "memberID", member.MemberID, "status", status)

	response := member.ToResponse()
	return &response, nil
}

// DeleteMember removes a member record
func (s *MemberService) DeleteMember(memberID string) error {
	result := s.db.Delete(&models.Member{}, "member_id = ?", memberID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete member %s: %w", memberID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}
