package models

import "time"

// ApprovalStatus is the state of one decision cycle
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalRecord links one submission of a pending client to its outcome.
// A resubmission opens a new record so earlier decisions stay intact.
type ApprovalRecord struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	PendingClientID *uint          `gorm:"index" json:"pendingClientId,omitempty"`
	PendingClient   *PendingClient `gorm:"foreignKey:PendingClientID;constraint:OnDelete:SET NULL" json:"-"`
	ApprovedTierID  *uint          `gorm:"index" json:"approvedTierId,omitempty"`
	ApprovedTier    *Tier          `gorm:"foreignKey:ApprovedTierID;constraint:OnDelete:SET NULL" json:"-"`
	RequestedBy     *uint          `gorm:"index" json:"requestedBy,omitempty"`
	Requester       *User          `gorm:"foreignKey:RequestedBy;constraint:OnDelete:SET NULL" json:"-"`
	// UserID is the decision maker; records go with that user
	UserID          *uint          `gorm:"index" json:"userId,omitempty"`
	User            *User          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Status          ApprovalStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	RejectionReason *string        `gorm:"type:text" json:"rejectionReason,omitempty"`
	DecidedAt       *time.Time     `json:"decidedAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// TableName specifies the table name for ApprovalRecord model
func (ApprovalRecord) TableName() string {
	return "approval_records"
}
