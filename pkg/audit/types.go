package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeLogin          EventType = "auth.login"
	EventTypeLoginFailed    EventType = "auth.login_failed"
	EventTypeLogout         EventType = "auth.logout"
	EventTypeRefresh        EventType = "auth.refresh"
	EventTypeRefreshReuse   EventType = "auth.refresh_reuse"
	EventTypePasswordChange EventType = "auth.password_change"

	EventTypeAccessDenied EventType = "authz.access_denied"

	EventTypeRoleChange     EventType = "admin.role_change"
	EventTypeUserDisable    EventType = "admin.user_disable"
	EventTypeUserEnable     EventType = "admin.user_enable"
	EventTypeUserCreate     EventType = "admin.user_create"
	EventTypeSessionRevoked EventType = "admin.session_revoked"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single audit trail entry. One JSON object per line in
// the file logger's output.
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	CollegeID string `json:"college_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	// Reason is the internal denial reason; it never leaves the
	// audit trail.
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}
