package models

import (
	"time"

	"gorm.io/gorm"
)

// ClientStatus is the workflow state of a pending client
type ClientStatus string

const (
	ClientStatusDraft    ClientStatus = "draft"
	ClientStatusPending  ClientStatus = "pending"
	ClientStatusApproved ClientStatus = "approved"
	ClientStatusRejected ClientStatus = "rejected"
)

// ClientDetails holds the business fields shared by pending clients and tiers
type ClientDetails struct {
	Name           string     `gorm:"size:255;not null;index" json:"name" validate:"required,max=255"`
	AddressLine1   string     `gorm:"size:255" json:"addressLine1" validate:"max=255"`
	AddressLine2   string     `gorm:"size:255" json:"addressLine2" validate:"max=255"`
	City           string     `gorm:"size:100" json:"city" validate:"max=100"`
	Country        string     `gorm:"size:100" json:"country" validate:"max=100"`
	Phone          string     `gorm:"size:50" json:"phone" validate:"max=50"`
	Email          string     `gorm:"size:255" json:"email" validate:"omitempty,email"`
	Category       string     `gorm:"size:100" json:"category" validate:"max=100"`
	TaxID          string     `gorm:"size:100" json:"taxId" validate:"max=100"`
	Type           string     `gorm:"size:100" json:"type" validate:"max=100"`
	RequestDate    *time.Time `json:"requestDate,omitempty"`
	InvoicedAmount float64    `json:"invoicedAmount" validate:"gte=0"`
	PaidAmount     float64    `json:"paidAmount" validate:"gte=0"`
	Credit         float64    `json:"credit"`
	Reason         string     `gorm:"type:text" json:"reason"`
	Establishment  string     `gorm:"size:255" json:"establishment" validate:"max=255"`
	Service        string     `gorm:"size:255" json:"service" validate:"max=255"`
	SignerName     string     `gorm:"size:255" json:"signerName" validate:"max=255"`
}

// PendingClient is an account-opening request moving through the approval workflow
type PendingClient struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	AccountNumber *string `gorm:"size:32;index" json:"accountNumber,omitempty"`
	ClientDetails `gorm:"embedded"`
	Status        ClientStatus `gorm:"size:20;not null;default:'draft';index" json:"status"`
	CreatedBy     *uint        `gorm:"index" json:"createdBy,omitempty"`
	Creator       *User        `gorm:"foreignKey:CreatedBy;constraint:OnDelete:SET NULL" json:"-"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// TableName specifies the table name for PendingClient model
func (PendingClient) TableName() string {
	return "pending_clients"
}

// Editable reports whether the request may still be changed by its owner
func (p PendingClient) Editable() bool {
	return p.Status != ClientStatusApproved
}

// Tier is an approved business account. Rows are only created by the approval workflow.
type Tier struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	AccountNumber   string `gorm:"size:32;not null;uniqueIndex" json:"accountNumber"`
	ClientDetails   `gorm:"embedded"`
	PendingClientID *uint          `gorm:"index" json:"pendingClientId,omitempty"`
	PendingClient   *PendingClient `gorm:"foreignKey:PendingClientID;constraint:OnDelete:SET NULL" json:"-"`
	CreatedBy       *uint          `gorm:"index" json:"createdBy,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Tier model
func (Tier) TableName() string {
	return "tiers"
}

// GetEntityID implements AuditableEntity
func (t Tier) GetEntityID() uint {
	return t.ID
}

// GetEntityType implements AuditableEntity
func (t Tier) GetEntityType() string {
	return EntityTier
}

// AfterFind keeps the request date in UTC whatever location the driver parsed it into
func (t *Tier) AfterFind(tx *gorm.DB) error {
	if t.RequestDate != nil {
		d := t.RequestDate.UTC()
		t.RequestDate = &d
	}
	return nil
}
