package model

import (
	"encoding/json"
	"time"
)

// Role is a user's access level.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleBusinessUser Role = "business_user"
	RoleGuest        Role = "guest"
)

// AuthProvider identifies how a user signs in.
type AuthProvider string

const (
	ProviderEmail  AuthProvider = "email"
	ProviderGoogle AuthProvider = "google"
)

// User is an account. HashedPassword is empty for social logins.
type User struct {
	ID             int64        `json:"id"`
	Email          string       `json:"email"`
	Username       *string      `json:"username"`
	FullName       string       `json:"full_name"`
	HashedPassword string       `json:"-"`
	IsActive       bool         `json:"is_active"`
	IsVerified     bool         `json:"is_verified"`
	Role           Role         `json:"role"`
	AuthProvider   AuthProvider `json:"auth_provider"`
	ProviderID     string       `json:"-"`
	ProfilePicture string       `json:"profile_picture,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	LastLogin      *time.Time   `json:"last_login,omitempty"`
}

// Session is a refreshable login.
type Session struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	SessionToken string    `json:"session_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// PasswordResetToken is a single-use reset credential.
type PasswordResetToken struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchHistory records one search made by a user.
type SearchHistory struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	Query        string          `json:"query"`
	BusinessType string          `json:"business_type"`
	FiltersUsed  json.RawMessage `json:"filters_used,omitempty"`
	ResultsCount int             `json:"results_count"`
	Timestamp    time.Time       `json:"search_timestamp"`
}
