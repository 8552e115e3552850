package enums

import "fmt"

// UserRole is the platform role carried in access tokens.
type UserRole string

const (
	UserRoleCustomer    UserRole = "customer"
	UserRoleVendor      UserRole = "vendor"
	UserRoleTransporter UserRole = "transporter"
	UserRoleAdmin       UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleCustomer,
	UserRoleVendor,
	UserRoleTransporter,
	UserRoleAdmin,
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// SubscriptionOwnerType returns the owner type for roles that hold plans.
func (r UserRole) SubscriptionOwnerType() (SubscriptionOwnerType, bool) {
	switch r {
	case UserRoleVendor:
		return SubscriptionOwnerVendor, true
	case UserRoleTransporter:
		return SubscriptionOwnerTransporter, true
	}
	return "", false
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
