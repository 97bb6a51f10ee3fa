package domain

import "time"

// RoleAdmin is the only role allowed to read the verification dashboard.
const RoleAdmin = "admin"

// OperatorSession is the result of a successful dashboard login.
type OperatorSession struct {
	Bearer    string    `json:"Bearer"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"notblank"`
	Password string `json:"password" validate:"required"`
}
