package models

// MemberStatus represents the lifecycle status of a membership record
type MemberStatus string

const (
	StatusPending  MemberStatus = "pending"
	StatusApproved MemberStatus = "approved"
	StatusRejected MemberStatus = "rejected"
)

// IsValid reports whether the status is one of the known values
func (s MemberStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// DefaultStatus is assigned to records whose status is missing or unknown
func DefaultStatus() MemberStatus {
	return StatusPending
}

// Provenance represents which workflow originated a membership record
type Provenance string

const (
	ProvenanceWebsite Provenance = "website"
	ProvenanceImport  Provenance = "import"
	ProvenanceManual  Provenance = "manual"
	ProvenanceUnknown Provenance = "unknown"
)

// IsValid reports whether the provenance is one of the known values
func (p Provenance) IsValid() bool {
	switch p {
	case ProvenanceWebsite, ProvenanceImport, ProvenanceManual, ProvenanceUnknown:
		return true
	}
	return false
}

// DefaultProvenance is assigned to records whose provenance is missing or unknown
func DefaultProvenance() Provenance {
	return ProvenanceUnknown
}

// SyncMode represents how a sync run executed
type SyncMode string

const (
	SyncModeFull         SyncMode = "full"
	SyncModeDatabaseOnly SyncMode = "database-only"
)

// Field length constraints
const (
	MaxNameLength       = 255
	MaxDepartmentLength = 255
	MaxPhoneLength      = 15 // E.164 format
	NationalIDLength    = 11
)
