package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity actions
const (
	ActionCreate = "Création"
	ActionUpdate = "Modification"
	ActionDelete = "Suppression"
)

// ActivityEntry is the common shape of both activity tables, as returned by the API
type ActivityEntry struct {
	ID         uint              `json:"id"`
	EntityType string            `json:"entityType"`
	EntityID   uint              `json:"entityId"`
	UserID     *uint             `json:"userId"`
	Action     string            `json:"action"`
	Changes    datatypes.JSONMap `json:"changes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// TierActivityLog is the append-only trail of a tier. A nil UserID marks a system entry.
type TierActivityLog struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	TierID    uint              `gorm:"not null;index" json:"tierId"`
	Tier      *Tier             `gorm:"foreignKey:TierID;constraint:OnDelete:CASCADE" json:"-"`
	UserID    *uint             `gorm:"index" json:"userId"`
	User      *User             `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`
	Action    string            `gorm:"size:50;not null" json:"action"`
	Changes   datatypes.JSONMap `json:"changes"`
	CreatedAt time.Time         `gorm:"index" json:"createdAt"`
}

// TableName specifies the table name for TierActivityLog model
func (TierActivityLog) TableName() string {
	return "tier_activity_logs"
}

// Entry converts the row to the shared shape
func (l TierActivityLog) Entry() ActivityEntry {
	return ActivityEntry{ID: l.ID, EntityType: EntityTier, EntityID: l.TierID, UserID: l.UserID, Action: l.Action, Changes: l.Changes, CreatedAt: l.CreatedAt}
}

// TraiteActivityLog is the append-only trail of a traite
type TraiteActivityLog struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	TraiteID  uint              `gorm:"not null;index" json:"traiteId"`
	Traite    *Traite           `gorm:"foreignKey:TraiteID;constraint:OnDelete:CASCADE" json:"-"`
	UserID    *uint             `gorm:"index" json:"userId"`
	User      *User             `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`
	Action    string            `gorm:"size:50;not null" json:"action"`
	Changes   datatypes.JSONMap `json:"changes"`
	CreatedAt time.Time         `gorm:"index" json:"createdAt"`
}

// TableName specifies the table name for TraiteActivityLog model
func (TraiteActivityLog) TableName() string {
	return "traite_activity_logs"
}

// Entry converts the row to the shared shape
func (l TraiteActivityLog) Entry() ActivityEntry {
	return ActivityEntry{ID: l.ID, EntityType: EntityTraite, EntityID: l.TraiteID, UserID: l.UserID, Action: l.Action, Changes: l.Changes, CreatedAt: l.CreatedAt}
}
