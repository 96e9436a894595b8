package enums

// Role is the authenticated principal's role, carried in access tokens.
type Role string

const (
	RoleBuyer   Role = "buyer"
	RoleVendor  Role = "vendor"
	RoleAgent   Role = "agent"
	RoleSupport Role = "support"
	RoleAdmin   Role = "admin"
)

var validRoles = []Role{RoleBuyer, RoleVendor, RoleAgent, RoleSupport, RoleAdmin}

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role may work the dispute queue.
func (r Role) IsStaff() bool {
	return r == RoleSupport || r == RoleAdmin
}

// AccountRole maps a marketplace role to the wallet it transacts through.
func (r Role) AccountRole() (AccountRole, bool) {
	switch r {
	case RoleBuyer:
		return AccountRoleBuyer, true
	case RoleVendor:
		return AccountRoleVendor, true
	case RoleAgent:
		return AccountRoleAgent, true
	default:
		return "", false
	}
}

// AccountRole tags a wallet and a dispute party.
type AccountRole string

const (
	AccountRoleBuyer  AccountRole = "buyer"
	AccountRoleVendor AccountRole = "vendor"
	AccountRoleAgent  AccountRole = "agent"
)

var validAccountRoles = []AccountRole{AccountRoleBuyer, AccountRoleVendor, AccountRoleAgent}

func (a AccountRole) String() string {
	return string(a)
}

func (a AccountRole) IsValid() bool {
	for _, candidate := range validAccountRoles {
		if candidate == a {
			return true
		}
	}
	return false
}

// SellerKind distinguishes the two kinds of party that can sell.
type SellerKind string

const (
	SellerKindVendor SellerKind = "vendor"
	SellerKindAgent  SellerKind = "agent"
)

var validSellerKinds = []SellerKind{SellerKindVendor, SellerKindAgent}

func (s SellerKind) String() string {
	return string(s)
}

func (s SellerKind) IsValid() bool {
	for _, candidate := range validSellerKinds {
		if candidate == s {
			return true
		}
	}
	return false
}

// AccountRole returns the wallet role a seller of this kind is paid into.
func (s SellerKind) AccountRole() AccountRole {
	if s == SellerKindAgent {
		return AccountRoleAgent
	}
	return AccountRoleVendor
}

// Role returns the principal role that sells as this kind.
func (s SellerKind) Role() Role {
	if s == SellerKindAgent {
		return RoleAgent
	}
	return RoleVendor
}

// SellerKindFor returns the seller kind for a principal role.
func SellerKindFor(role Role) (SellerKind, bool) {
	switch role {
	case RoleVendor:
		return SellerKindVendor, true
	case RoleAgent:
		return SellerKindAgent, true
	default:
		return "", false
	}
}
