package models

import "time"

type User struct {
	ID           int64   `json:"id" db:"id"`
	Email        string  `json:"email" db:"email"`
	DisplayName  string  `json:"display_name" db:"display_name"`
	PasswordHash *string `json:"-" db:"password_hash"`
	// "google" dla kont federacyjnych; takie konta nie mają hasła.
	Provider          *string   `json:"provider,omitempty" db:"provider"`
	ProfilePic        *string   `json:"profile_pic,omitempty" db:"profile_pic"`
	StorageQuotaBytes int64     `json:"storage_quota_bytes" db:"storage_quota_bytes"`
	StorageUsedBytes  int64     `json:"storage_used_bytes" db:"storage_used_bytes"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	ModifiedAt        time.Time `json:"modified_at" db:"modified_at"`
}
