package auth

// Roles understood by the ledger service.
const (
	RoleAdmin    = "admin"
	RoleExternal = "externo"
)

// Principal is the interface for any entity making a request (user, API key, system).
type Principal interface {
	GetID() string
	GetEmail() string
	GetRoles() []string
	HasRole(role string) bool
}

// BasePrincipal is a simple implementation of Principal.
type BasePrincipal struct {
	ID    string
	Email string
	Roles []string
}

func (b *BasePrincipal) GetID() string {
	return b.ID
}

func (b *BasePrincipal) GetEmail() string {
	return b.Email
}

func (b *BasePrincipal) GetRoles() []string {
	return b.Roles
}

func (b *BasePrincipal) HasRole(role string) bool {
	for _, r := range b.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether p carries the admin role. A nil principal is not an admin.
func IsAdmin(p Principal) bool {
	return p != nil && p.HasRole(RoleAdmin)
}
