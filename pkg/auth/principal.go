package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/pkg/enums"
)

// Principal is the authenticated caller. It is established once by the auth
// middleware and passed down as a value.
type Principal struct {
	UserID uuid.UUID
	Role   enums.Role
}

// AccountRole returns the wallet role the principal transacts through.
func (p Principal) AccountRole() (enums.AccountRole, bool) {
	return p.Role.AccountRole()
}

// HasRole reports whether the principal holds any of roles.
func (p Principal) HasRole(roles ...enums.Role) bool {
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.UserID == uuid.Nil {
		return Principal{}, false
	}
	return p, true
}
