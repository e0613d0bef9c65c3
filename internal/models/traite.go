package models

import (
	"time"

	"gorm.io/gorm"
)

// TraiteStatus tracks collection of a bill
type TraiteStatus string

const (
	TraiteOutstanding TraiteStatus = "en_cours"
	TraitePaid        TraiteStatus = "payee"
	TraiteUnpaid      TraiteStatus = "impayee"
)

// Traite is a bill of exchange drawn on a tier
type Traite struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Number    string         `gorm:"size:64;not null;uniqueIndex" json:"number"`
	TierID    uint           `gorm:"not null;index" json:"tierId"`
	Tier      *Tier          `gorm:"foreignKey:TierID;constraint:OnDelete:RESTRICT" json:"-"`
	Amount    float64        `gorm:"not null" json:"amount"`
	Currency  string         `gorm:"size:3;not null;default:'EUR'" json:"currency"`
	IssueDate time.Time      `json:"issueDate"`
	DueDate   time.Time      `gorm:"index" json:"dueDate"`
	Bank      string         `gorm:"size:255" json:"bank"`
	Status    TraiteStatus   `gorm:"size:20;not null;default:'en_cours';index" json:"status"`
	CreatedBy *uint          `gorm:"index" json:"createdBy,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Traite model
func (Traite) TableName() string {
	return "traites"
}

// GetEntityID implements AuditableEntity
func (t Traite) GetEntityID() uint {
	return t.ID
}

// GetEntityType implements AuditableEntity
func (t Traite) GetEntityType() string {
	return EntityTraite
}

// AfterFind keeps dates in UTC whatever location the driver parsed them into
func (t *Traite) AfterFind(tx *gorm.DB) error {
	t.IssueDate = t.IssueDate.UTC()
	t.DueDate = t.DueDate.UTC()
	return nil
}
