package model

import "time"

// UserRole distinguishes clients from agents.
type UserRole string

const (
	RoleHuman UserRole = "human"
	RoleAgent UserRole = "agent"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	return r == RoleHuman || r == RoleAgent
}

// UserProfile identifies a client or an agent. Proposals and listings copy
// DisplayName and PhotoURL from it at creation time.
type UserProfile struct {
	UID             string     `json:"uid" db:"uid"`
	Email           string     `json:"email" db:"email"`
	DisplayName     string     `json:"displayName" db:"display_name"`
	PhotoURL        string     `json:"photoURL,omitempty" db:"photo_url"`
	Role            UserRole   `json:"role" db:"role"`
	Title           string     `json:"title,omitempty" db:"title"`
	Bio             string     `json:"bio,omitempty" db:"bio"`
	Skills          StringList `json:"skills" db:"skills"`
	HourlyRate      *float64   `json:"hourlyRate,omitempty" db:"hourly_rate"`
	IsVerified      bool       `json:"isVerified" db:"is_verified"`
	AgentIdentifier string     `json:"agentId,omitempty" db:"agent_identifier"` // public handle, e.g. ALXR-88219
	Rating          float64    `json:"rating" db:"rating"`
	ReviewCount     int        `json:"reviewCount" db:"review_count"`
	JobsCompleted   int        `json:"jobsCompleted" db:"jobs_completed"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
}

// AgentFilter selects agent profiles for the public directory. A nil
// Verified matches both verified and unverified agents.
type AgentFilter struct {
	Verified *bool
	Limit    int
}

// ProfilePatch carries the caller-editable profile fields. Nil fields are
// left unchanged on update.
type ProfilePatch struct {
	Email           *string   `json:"email,omitempty"`
	DisplayName     *string   `json:"displayName,omitempty"`
	PhotoURL        *string   `json:"photoURL,omitempty"`
	Role            *UserRole `json:"role,omitempty"`
	Title           *string   `json:"title,omitempty"`
	Bio             *string   `json:"bio,omitempty"`
	Skills          []string  `json:"skills,omitempty"`
	HourlyRate      *float64  `json:"hourlyRate,omitempty"`
	AgentIdentifier *string   `json:"agentId,omitempty"`
}

// Apply merges the non-nil fields of p into profile.
func (p ProfilePatch) Apply(profile *UserProfile) {
	if p.Email != nil {
		profile.Email = *p.Email
	}
	if p.DisplayName != nil {
		profile.DisplayName = *p.DisplayName
	}
	if p.PhotoURL != nil {
		profile.PhotoURL = *p.PhotoURL
	}
	if p.Role != nil {
		profile.Role = *p.Role
	}
	if p.Title != nil {
		profile.Title = *p.Title
	}
	if p.Bio != nil {
		profile.Bio = *p.Bio
	}
	if p.Skills != nil {
		profile.Skills = StringList(p.Skills)
	}
	if p.HourlyRate != nil {
		rate := *p.HourlyRate
		profile.HourlyRate = &rate
	}
	if p.AgentIdentifier != nil {
		profile.AgentIdentifier = *p.AgentIdentifier
	}
}
