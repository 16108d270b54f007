package models

import "time"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleRegular Role = "regular"
)

type User struct {
	ID             int64     `json:"id" db:"id"`
	FullName       string    `json:"full_name" db:"full_name"`
	Username       string    `json:"username" db:"username"`
	Email          string    `json:"email,omitempty" db:"email"`
	Role           Role      `json:"role" db:"role"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	HashedPassword string    `json:"-" db:"hashed_password"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
