package models

// Entity types carrying an activity trail
const (
	EntityTier   = "tier"
	EntityTraite = "traite"
)

// AuditableEntity is implemented by models whose changes are written to an activity log
type AuditableEntity interface {
	GetEntityID() uint
	GetEntityType() string
}
