package domain

import "time"

// Role enumerates helpdesk roles.
type Role string

const (
	RoleAdministrator Role = "ADMINISTRATOR"
	RoleSupervisor    Role = "SUPERVISOR"
	RoleMonitor       Role = "MONITOR"
	RoleTechnician    Role = "TECHNICIAN"
	RoleSelfService   Role = "SELF_SERVICE"
)

// SLAWatcherRoles always receive SLA notifications.
var SLAWatcherRoles = []Role{RoleSupervisor, RoleMonitor}

// User is a directory entry: staff or a self-service requester.
type User struct {
	ID           string
	Username     string
	FullName     string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName prefers the username, then the email.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
