package account

import "time"

// Role distinguishes ordinary marketplace members from the operator.
type Role string

const (
	RoleStandard Role = "standard"
	RoleOperator Role = "operator"
)

// Account represents a registered marketplace identity. The name is fixed at
// registration time and never changes afterwards.
type Account struct {
	ID           string
	Name         string
	Role         Role
	PasswordHash string `json:"-"`
	Email        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
