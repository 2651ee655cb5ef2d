package models

import "time"

type User struct {
	ID                string
	Name              string
	Email             string
	PhoneNumber       string
	PasswordHash      string
	IsVerified        bool
	OTPHash           *string
	OTPExpiresAt      *time.Time
	ResetAllowedUntil *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type OrphanedBlob struct {
	StorageID string
	Reason    string
	Attempts  int
	LastError *string
	CreatedAt time.Time
}
