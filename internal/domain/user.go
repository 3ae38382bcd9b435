package domain

import "time"

// UserStatus represents account standing.
type UserStatus string

const (
	UserStatusActive     UserStatus = "active"
	UserStatusRestricted UserStatus = "restricted"
)

// User is the read-only identity record referenced by tickets.
type User struct {
	ID         int64
	Username   string
	Email      string
	Role       Role
	IsVerified bool
	Status     UserStatus
	CreatedAt  time.Time
}
