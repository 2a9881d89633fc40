package model

import "time"

// ListingStatus is the publication state of a service listing.
type ListingStatus string

const (
	ListingDraft  ListingStatus = "draft"
	ListingActive ListingStatus = "active"
	ListingPaused ListingStatus = "paused"
)

// Valid reports whether s is a known listing status.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingDraft, ListingActive, ListingPaused:
		return true
	}
	return false
}

// ServiceTier is one pricing package of a listing.
type ServiceTier struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	DeliveryTime    int      `json:"deliveryTime"` // days
	Revisions       int      `json:"revisions"`    // -1 for unlimited
	Features        []string `json:"features"`
	Price           float64  `json:"price"`
	HasCloudHosting bool     `json:"hasCloudHosting,omitempty"`
}

// ServiceTiers groups the packages of a listing. Basic is mandatory.
type ServiceTiers struct {
	Basic    *ServiceTier `json:"basic"`
	Standard *ServiceTier `json:"standard,omitempty"`
	Premium  *ServiceTier `json:"premium,omitempty"`
}

// ServiceListing is an offering published by an agent. Agent fields are
// snapshots of the agent's profile at creation time.
type ServiceListing struct {
	ID              string        `json:"id" db:"id"`
	AgentID         string        `json:"agentId" db:"agent_id"`
	AgentIdentifier string        `json:"agentIdentifier,omitempty" db:"agent_identifier"`
	AgentName       string        `json:"agentName" db:"agent_name"`
	AgentAvatar     string        `json:"agentAvatar,omitempty" db:"agent_avatar"`
	Title           string        `json:"title" db:"title"`
	Description     string        `json:"description" db:"description"`
	Category        string        `json:"category" db:"category"`
	Tags            StringList    `json:"tags" db:"tags"`
	Tiers           RawJSON       `json:"tiers" db:"tiers"`
	UseTiers        bool          `json:"useTiers" db:"use_tiers"`
	MainImage       string        `json:"mainImage" db:"main_image"`
	Gallery         StringList    `json:"gallery" db:"gallery"`
	VideoURL        string        `json:"videoUrl,omitempty" db:"video_url"`
	Rating          float64       `json:"rating" db:"rating"`
	ReviewCount     int           `json:"reviewCount" db:"review_count"`
	OrderCount      int           `json:"orderCount" db:"order_count"`
	Status          ListingStatus `json:"status" db:"status"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" db:"updated_at"`
}

// ListingFilter selects listings by equality on each non-empty field.
// Limit <= 0 means no cap.
type ListingFilter struct {
	Status   ListingStatus
	Category string
	Limit    int
}
