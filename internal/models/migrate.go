package models

import "gorm.io/gorm"

// All lists every table in dependency order
func All() []interface{} {
	return []interface{}{
		&Role{},
		&User{},
		&OrganizationSettings{},
		&PendingClient{},
		&Tier{},
		&ApprovalRecord{},
		&Traite{},
		&TierActivityLog{},
		&TraiteActivityLog{},
		&Notification{},
	}
}

// Migrate synchronizes the schema
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
