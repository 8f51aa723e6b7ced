package model

import "time"

// ApplicationStatus is the review state of a registration application.
type ApplicationStatus string

const (
	StatusDraft                  ApplicationStatus = "DRAFT"
	StatusSubmitted              ApplicationStatus = "SUBMITTED"
	StatusUnderReview            ApplicationStatus = "UNDER_REVIEW"
	StatusAdditionalInfoRequired ApplicationStatus = "ADDITIONAL_INFO_REQUIRED"
	StatusApproved               ApplicationStatus = "APPROVED"
	StatusRejected               ApplicationStatus = "REJECTED"
)

// ApplicationStatuses lists every status in workflow order.
var ApplicationStatuses = []ApplicationStatus{
	StatusDraft,
	StatusSubmitted,
	StatusUnderReview,
	StatusAdditionalInfoRequired,
	StatusApproved,
	StatusRejected,
}

// ActionableStatuses are the states from which a reviewer may decide.
var ActionableStatuses = []ApplicationStatus{StatusSubmitted, StatusUnderReview}

// ParseApplicationStatus returns the status named s.
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	for _, st := range ApplicationStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Actionable reports whether approve, reject or request-info may act on s.
func (s ApplicationStatus) Actionable() bool {
	for _, st := range ActionableStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// DocumentKind names one of the uploaded supporting documents.
type DocumentKind string

const (
	DocumentBylaws     DocumentKind = "bylaws"
	DocumentMemberList DocumentKind = "member_list"
	DocumentMinutes    DocumentKind = "minutes"
	DocumentIDCopies   DocumentKind = "id_copies"
)

// RegistrationApplication is a request to register a cooperative. It is
// never deleted; CooperativeID is set once on approval.
type RegistrationApplication struct {
	ID                   uint              `json:"id" gorm:"primaryKey"`
	ApplicationNumber    string            `json:"application_number" gorm:"type:varchar(30);uniqueIndex;not null"`
	ProposedName         string            `json:"proposed_name" gorm:"type:varchar(200);not null"`
	CooperativeTypeID    uint              `json:"cooperative_type_id" gorm:"index"`
	TenantID             uint              `json:"tenant_id" gorm:"index;not null"`
	ApplicantID          *string           `json:"applicant_id,omitempty" gorm:"type:uuid"`
	ProposedMembers      int               `json:"proposed_members"`
	ProposedShareCapital float64           `json:"proposed_share_capital"`
	ContactEmail         string            `json:"contact_email" gorm:"type:varchar(100)"`
	ContactPhone         string            `json:"contact_phone" gorm:"type:varchar(30)"`
	PhysicalAddress      string            `json:"physical_address" gorm:"type:text"`
	BylawsPath           string            `json:"bylaws_path" gorm:"type:varchar(255)"`
	MemberListPath       string            `json:"member_list_path" gorm:"type:varchar(255)"`
	MinutesPath          string            `json:"minutes_path" gorm:"type:varchar(255)"`
	IDCopiesPath         string            `json:"id_copies_path" gorm:"type:varchar(255)"`
	Status               ApplicationStatus `json:"status" gorm:"type:varchar(30);index;not null;default:'DRAFT'"`
	SubmittedAt          *time.Time        `json:"submitted_at,omitempty" gorm:"index"`
	ReviewedAt           *time.Time        `json:"reviewed_at,omitempty"`
	ReviewedBy           *string           `json:"reviewed_by,omitempty" gorm:"type:uuid"`
	ReviewNotes          *string           `json:"review_notes,omitempty" gorm:"type:text"`
	ApprovedAt           *time.Time        `json:"approved_at,omitempty"`
	ApprovedBy           *string           `json:"approved_by,omitempty" gorm:"type:uuid"`
	RejectionReason      *string           `json:"rejection_reason,omitempty" gorm:"type:text"`
	CooperativeID        *uint             `json:"cooperative_id,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`

	// Relations
	Tenant          *Tenant          `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	CooperativeType *CooperativeType `json:"cooperative_type,omitempty" gorm:"foreignKey:CooperativeTypeID"`
}

// DocumentPaths returns the stored path of every supporting document in a
// fixed order. Empty paths were never uploaded.
func (a RegistrationApplication) DocumentPaths() []DocumentPath {
	return []DocumentPath{
		{Kind: DocumentBylaws, Path: a.BylawsPath},
		{Kind: DocumentMemberList, Path: a.MemberListPath},
		{Kind: DocumentMinutes, Path: a.MinutesPath},
		{Kind: DocumentIDCopies, Path: a.IDCopiesPath},
	}
}

type DocumentPath struct {
	Kind DocumentKind
	Path string
}

// ApplicationTransition is the set of columns a workflow transition writes.
// Nil fields are left untouched.
type ApplicationTransition struct {
	Status          ApplicationStatus
	ReviewedBy      *string
	ReviewedAt      *time.Time
	ReviewNotes     *string
	ApprovedBy      *string
	ApprovedAt      *time.Time
	RejectionReason *string
	CooperativeID   *uint
}

// Columns renders the transition as a gorm update map.
func (t ApplicationTransition) Columns() map[string]interface{} {
	cols := map[string]interface{}{"status": t.Status}
	if t.ReviewedBy != nil {
		cols["reviewed_by"] = *t.ReviewedBy
	}
	if t.ReviewedAt != nil {
		cols["reviewed_at"] = *t.ReviewedAt
	}
	if t.ReviewNotes != nil {
		cols["review_notes"] = *t.ReviewNotes
	}
	if t.ApprovedBy != nil {
		cols["approved_by"] = *t.ApprovedBy
	}
	if t.ApprovedAt != nil {
		cols["approved_at"] = *t.ApprovedAt
	}
	if t.RejectionReason != nil {
		cols["rejection_reason"] = *t.RejectionReason
	}
	if t.CooperativeID != nil {
		cols["cooperative_id"] = *t.CooperativeID
	}
	return cols
}

// Apply copies the transition onto a, as the store would.
func (t ApplicationTransition) Apply(a *RegistrationApplication) {
	a.Status = t.Status
	if t.ReviewedBy != nil {
		a.ReviewedBy = t.ReviewedBy
	}
	if t.ReviewedAt != nil {
		a.ReviewedAt = t.ReviewedAt
	}
	if t.ReviewNotes != nil {
		a.ReviewNotes = t.ReviewNotes
	}
	if t.ApprovedBy != nil {
		a.ApprovedBy = t.ApprovedBy
	}
	if t.ApprovedAt != nil {
		a.ApprovedAt = t.ApprovedAt
	}
	if t.RejectionReason != nil {
		a.RejectionReason = t.RejectionReason
	}
	if t.CooperativeID != nil {
		a.CooperativeID = t.CooperativeID
	}
}
