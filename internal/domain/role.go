package domain

// Role constants define the allowed account roles. New registrations start
// as UNAPPROVED and are promoted by an admin.
const (
	RoleUnapproved = "UNAPPROVED"
	RoleUser       = "USER"
	RoleAdmin      = "ADMIN"
	RoleDeveloper  = "DEVELOPER"
)

// ValidRoles returns the set of valid account roles.
func ValidRoles() []string {
	return []string{RoleUnapproved, RoleUser, RoleAdmin, RoleDeveloper}
}

// IsValidRole checks whether the given role string is a valid account role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// IsApproved reports whether the role grants access to the application
// beyond the pending-approval page.
func IsApproved(role string) bool {
	return role == RoleUser || role == RoleAdmin || role == RoleDeveloper
}

// IsElevated reports whether the role grants administrative access.
func IsElevated(role string) bool {
	return role == RoleAdmin || role == RoleDeveloper
}
