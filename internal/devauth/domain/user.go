package domain

import (
	"time"

	"github.com/aussiebroadwan/consoleauth/pkg/authz"
)

// Roles issued to accounts.
const (
	RoleAdmin = authz.RoleAdmin
	RoleUser  = authz.RoleUser
)

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         string
	Authorities  []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subject is the view of u that authorization policies evaluate.
func (u User) Subject() authz.Subject {
	return authz.Subject{Role: u.Role, Authorities: u.Authorities}
}
