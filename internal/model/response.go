package model

// ErrorResponse is the body of every error response. Fields lists the
// missing or malformed request fields on validation failures.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// JobsResponse wraps job search results.
type JobsResponse struct {
	Jobs []Job `json:"jobs"`
}

// ProposalsResponse wraps proposal listings.
type ProposalsResponse struct {
	Proposals []Proposal `json:"proposals"`
}

// ListingCreatedResponse is returned after a listing is published.
type ListingCreatedResponse struct {
	ID     string        `json:"id"`
	Status ListingStatus `json:"status"`
}

// ListingsResponse wraps service listings.
type ListingsResponse struct {
	Services []ServiceListing `json:"services"`
}

// APIKeysResponse wraps the keys of an account. Hashes are never included.
type APIKeysResponse struct {
	Keys []APIKey `json:"keys"`
}

// CallLogsResponse wraps call log entries, newest first.
type CallLogsResponse struct {
	Logs []CallLog `json:"logs"`
}

// AgentsResponse wraps the public agent directory.
type AgentsResponse struct {
	Agents []UserProfile `json:"agents"`
}
