package http

import (
	"time"

	"github.com/unifeast/feastd/internal/assemble"
	"github.com/unifeast/feastd/internal/filter"
)

// ChatRequest is the request body for POST /api/v1/chat.
type ChatRequest struct {
	// Message is the user's free-text message.
	Message string `json:"message"`

	// UserID identifies the user. Optional; defaults server-side.
	UserID string `json:"user_id,omitempty"`

	// SessionID continues a conversation. Optional; empty starts a new
	// session.
	SessionID string `json:"session_id,omitempty"`

	// UserProfile is the raw profile document. Unknown and malformed
	// fields are tolerated and reported in the response warnings.
	UserProfile map[string]any `json:"user_profile,omitempty"`

	// Criteria are ad-hoc constraints for this turn.
	Criteria filter.Criteria `json:"criteria,omitempty"`

	// OverridePreferences lets criteria replace the profile's dietary
	// and price preferences for this turn only.
	OverridePreferences bool `json:"override_preferences,omitempty"`
}

// ChatResponse is the response body for POST /api/v1/chat.
type ChatResponse struct {
	TextBubble     string            `json:"text_bubble"`
	UICards        []assemble.Card   `json:"ui_cards"`
	SearchMetadata assemble.Metadata `json:"search_metadata"`
	UserID         string            `json:"user_id"`
	SessionID      string            `json:"session_id"`
	Timestamp      time.Time         `json:"timestamp"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// PurgeResponse is the response body for POST /api/v1/admin/purge.
type PurgeResponse struct {
	PurgedSessions int `json:"purged_sessions"`
}

// SessionSummary is one entry in the GET /api/v1/sessions listing.
type SessionSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// SessionsResponse is the response body for GET /api/v1/sessions.
type SessionsResponse struct {
	UserID   string           `json:"user_id"`
	Sessions []SessionSummary `json:"sessions"`
}
