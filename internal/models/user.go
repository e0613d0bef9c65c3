package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role groups a set of capability tokens
type Role struct {
	ID          uint                        `gorm:"primaryKey" json:"id"`
	Name        string                      `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Permissions datatypes.JSONSlice[string] `json:"permissions"`
	CreatedAt   time.Time                   `json:"createdAt"`
	UpdatedAt   time.Time                   `json:"updatedAt"`
}

// TableName specifies the table name for Role model
func (Role) TableName() string {
	return "roles"
}

// User represents a back-office operator
// Standardized: Go (PascalCase) -> DB (snake_case) -> JSON (camelCase)
type User struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Username  string     `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Password  string     `gorm:"not null" json:"-"`
	Email     string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name      string     `json:"name,omitempty"`
	IsActive  bool       `gorm:"default:true" json:"isActive"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`

	RoleID *uint `gorm:"index" json:"roleId,omitempty"`
	Role   *Role `gorm:"foreignKey:RoleID;constraint:OnDelete:SET NULL" json:"role,omitempty"`
	// Direct permissions replace the role's permissions when non-empty
	Permissions datatypes.JSONSlice[string] `json:"permissions"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
