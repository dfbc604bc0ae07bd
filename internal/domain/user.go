package domain

import "strings"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID       string `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	Role     string `json:"userRole" yaml:"role"`
}

func (u User) IsAdmin() bool {
	return strings.EqualFold(u.Role, RoleAdmin)
}
