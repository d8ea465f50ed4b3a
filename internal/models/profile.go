package models

import (
	"time"

	"tubeinsight/dashboard/internal/rbac"
)

type ProfileStatus string

const (
	ProfileStatusActive    ProfileStatus = "active"
	ProfileStatusSuspended ProfileStatus = "suspended"
	ProfileStatusBanned    ProfileStatus = "banned"
)

// ParseProfileStatus validates a status value received from an admin form.
func ParseProfileStatus(s string) (ProfileStatus, bool) {
	switch ProfileStatus(s) {
	case ProfileStatusActive, ProfileStatusSuspended, ProfileStatusBanned:
		return ProfileStatus(s), true
	default:
		return "", false
	}
}

type Profile struct {
	ID        string        `json:"id"`
	Email     string        `json:"email"`
	Role      rbac.Role     `json:"role"`
	Status    ProfileStatus `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Active reports whether the profile may use the dashboard at all.
func (p Profile) Active() bool {
	return p.Status == ProfileStatusActive
}
