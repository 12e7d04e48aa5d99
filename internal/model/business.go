package model

import "time"

// BusinessProfile is the source data a fingerprint is derived from.
// Any change to these fields signals that cached analyses may be stale.
type BusinessProfile struct {
	BusinessID  string    `json:"business_id"`
	Name        string    `json:"name"`
	Industry    string    `json:"industry"`
	WebsiteText string    `json:"website_text"`
	KeyFacts    []string  `json:"key_facts,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CompetitorEvent records one detected competitor-tracking event for a
// business. The count of events since a cache entry's creation feeds the
// competitor-activity freshness factor.
type CompetitorEvent struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	Competitor string    `json:"competitor"`
	EventType  string    `json:"event_type"`
	Detail     string    `json:"detail,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}
