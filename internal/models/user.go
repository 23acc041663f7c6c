package models

import "time"

// User represents a registered subscriber account
type User struct {
	ID          string
	Username    string
	PhoneNumber string
	PINHash     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
