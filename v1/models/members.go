package models

import (
	"errors"
	"time"
)

// ErrNoNaturalKey is returned when a record carries neither a national ID
// nor a registration number
var ErrNoNaturalKey = errors.New("member has no unique identifier (national ID or registration number)")

// ErrInvalidNationalID is returned when a national ID is present but not an
// 11-digit numeric string
var ErrInvalidNationalID = errors.New("national ID must be an 11-digit numeric string")

// Member represents the authoritative local membership record
type Member struct {
	MemberID        string       `gorm:"primarykey;column:member_id" json:"memberId"`
	FullName        string       `gorm:"column:full_name;not null" json:"fullName"`
	NationalID      string       `gorm:"column:national_id;index" json:"nationalId"`
	RegistrationNo  string       `gorm:"column:registration_no;index" json:"registrationNo"`
	Phone           string       `gorm:"column:phone" json:"phone"`
	Department      string       `gorm:"column:department" json:"department"`
	Status          MemberStatus `gorm:"column:status" json:"status"`
	Provenance      Provenance   `gorm:"column:provenance" json:"provenance"`
	SyncedToSheet   bool         `gorm:"column:synced_to_sheet" json:"syncedToSheet"`
	LastSheetUpdate *time.Time   `gorm:"column:last_sheet_update" json:"lastSheetUpdate,omitempty"`
	BaseModel
}

// TableName sets the table name for GORM
func (Member) TableName() string {
	return "members"
}

// HasNaturalKey reports whether the record carries at least one natural key
func (m *Member) HasNaturalKey() bool {
	return m.NationalID != "" || m.RegistrationNo != ""
}

// Validate checks the identity invariants that must hold before persistence
func (m *Member) Validate() error {
	if !m.HasNaturalKey() {
		return ErrNoNaturalKey
	}
	if m.NationalID != "" && !IsValidNationalID(m.NationalID) {
		return ErrInvalidNationalID
	}
	return nil
}

// IsValidNationalID reports whether s is an 11-digit numeric string
func IsValidNationalID(s string) bool {
	if len(s) != NationalIDLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CollectionResponse is the generic list envelope
type CollectionResponse struct {
	Items interface{} `json:"items"`
	Count int         `json:"count"`
}

// CreateMemberRequest is the payload for website intake and manual entry
type CreateMemberRequest struct {
	FullName       string `json:"fullName"`
	NationalID     string `json:"nationalId"`
	RegistrationNo string `json:"registrationNo"`
	Phone          string `json:"phone"`
	Department     string `json:"department"`
	// Provenance defaults to website intake when omitted; staff tooling
	// sends manual
	Provenance Provenance `json:"provenance,omitempty"`
}

// UpdateMemberRequest is the payload for partial member updates
type UpdateMemberRequest struct {
	FullName       *string `json:"fullName,omitempty"`
	NationalID     *string `json:"nationalId,omitempty"`
	RegistrationNo *string `json:"registrationNo,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	Department     *string `json:"department,omitempty"`
}

// MemberResponse is the API representation of a member
type MemberResponse struct {
	MemberID        string  `json:"memberId"`
	FullName        string  `json:"fullName"`
	NationalID      string  `json:"nationalId,omitempty"`
	RegistrationNo  string  `json:"registrationNo,omitempty"`
	Phone           string  `json:"phone,omitempty"`
	Department      string  `json:"department,omitempty"`
	Status          string  `json:"status"`
	Provenance      string  `json:"provenance"`
	SyncedToSheet   bool    `json:"syncedToSheet"`
	LastSheetUpdate *string `json:"lastSheetUpdate,omitempty"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
}

// ToResponse converts a Member to its API representation
func (m *Member) ToResponse() MemberResponse {
	resp := MemberResponse{
		MemberID:       m.MemberID,
		FullName:       m.FullName,
		NationalID:     m.NationalID,
		RegistrationNo: m.RegistrationNo,
		Phone:          m.Phone,
		Department:     m.Department,
		Status:         string(m.Status),
		Provenance:     string(m.Provenance),
		SyncedToSheet:  m.SyncedToSheet,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      m.UpdatedAt.Format(time.RFC3339),
	}
	if m.LastSheetUpdate != nil {
		s := m.LastSheetUpdate.Format(time.RFC3339)
		resp.LastSheetUpdate = &s
	}
	return resp
}
