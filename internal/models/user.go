// Package models defines the data types exchanged between the session core
// and the remote identity API.
package models

import (
	"strings"

	"github.com/ayla-health/ayla-cli/internal/autherr"
)

// MinPasswordLength is the minimum password length accepted before a
// register call is attempted.
const MinPasswordLength = 6

// UserProfile identifies the authenticated principal. It is replaced
// wholesale on login/refresh and never field-mutated.
type UserProfile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// DisplayName returns the best human-readable name available for the profile.
func (p *UserProfile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name != "" {
		return name
	}
	return p.Email
}

// Clone returns an independent copy so callers can hand out snapshots
// without sharing the controller-owned value.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Credentials is the transient input to a login call. Never persisted.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterData is the transient input to a register call. Never persisted.
type RegisterData struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
}

// Validate checks the local registration preconditions. It must be called
// before any network I/O; a violation fails fast with ValidationFailed.
func (d *RegisterData) Validate() error {
	if strings.TrimSpace(d.Email) == "" {
		return autherr.New(autherr.ValidationFailed, "email is required", nil)
	}
	if len(d.Password) < MinPasswordLength {
		return autherr.New(autherr.ValidationFailed, "password must be at least 6 characters", nil)
	}
	if d.Password != d.ConfirmPassword {
		return autherr.New(autherr.ValidationFailed, "passwords do not match", nil)
	}
	return nil
}
