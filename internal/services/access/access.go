// Package access resolves who is acting and what they may do.
package access

import (
	"sort"

	"github.com/xelth-com/eckbackoffice/internal/apperrors"
	"github.com/xelth-com/eckbackoffice/internal/models"
)

// Capability tokens
const (
	ManagePendingClients = "manage_pending_clients"
	CreatePendingClients = "create_pending_clients"
	ViewTiers            = "view_tiers"
	ManageTiers          = "manage_tiers"
	ManageTraites        = "manage_traites"
	ManageSettings       = "manage_settings"
	RunMaintenance       = "run_maintenance"
)

// AllPermissions is granted to the seeded administrator role
var AllPermissions = []string{
	ManagePendingClients,
	CreatePendingClients,
	ViewTiers,
	ManageTiers,
	ManageTraites,
	ManageSettings,
	RunMaintenance,
}

// Permissions is a set of capability tokens
type Permissions map[string]struct{}

// NewPermissions builds a set from a token list
func NewPermissions(tokens ...string) Permissions {
	p := make(Permissions, len(tokens))
	for _, t := range tokens {
		if t != "" {
			p[t] = struct{}{}
		}
	}
	return p
}

// Has reports whether the token is in the set
func (p Permissions) Has(token string) bool {
	_, ok := p[token]
	return ok
}

// List returns the tokens sorted
func (p Permissions) List() []string {
	out := make([]string, 0, len(p))
	for t := range p {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Effective resolves a user's permissions: direct permissions, when any are set,
// replace those of the role entirely.
func Effective(user *models.User) Permissions {
	if user == nil {
		return Permissions{}
	}
	if len(user.Permissions) > 0 {
		return NewPermissions(user.Permissions...)
	}
	if user.Role != nil {
		return NewPermissions(user.Role.Permissions...)
	}
	return Permissions{}
}

// Actor is the authenticated caller of a service operation
type Actor struct {
	UserID      uint
	Permissions Permissions
}

// ActorFor builds the actor of a loaded user
func ActorFor(user *models.User) Actor {
	return Actor{UserID: user.ID, Permissions: Effective(user)}
}

// Require fails with Forbidden unless the actor holds the token
func (a Actor) Require(token string) error {
	if !a.Permissions.Has(token) {
		return apperrors.Forbidden("permission %s required", token)
	}
	return nil
}

// Can reports whether the actor holds the token
func (a Actor) Can(token string) bool {
	return a.Permissions.Has(token)
}

// UserRef returns a pointer to the actor id for nullable foreign keys
func (a Actor) UserRef() *uint {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}
