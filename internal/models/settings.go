package models

import "time"

// OrganizationSettings is the single row describing the operating organization
type OrganizationSettings struct {
	ID                     uint      `gorm:"primaryKey" json:"-"`
	Name                   string    `gorm:"size:255" json:"name" validate:"max=255"`
	Address                string    `gorm:"size:255" json:"address" validate:"max=255"`
	Phone                  string    `gorm:"size:50" json:"phone" validate:"max=50"`
	Email                  string    `gorm:"size:255" json:"email" validate:"omitempty,email"`
	TaxID                  string    `gorm:"size:100" json:"taxId" validate:"max=100"`
	RequireRejectionReason bool      `gorm:"default:false" json:"requireRejectionReason"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// TableName specifies the table name for OrganizationSettings model
func (OrganizationSettings) TableName() string {
	return "organization_settings"
}
