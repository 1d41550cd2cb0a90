package models

// Session log entry types.
const (
	SessionLogCreate   = "Create"
	SessionLogExtended = "Extended"
	SessionLogClosed   = "Closed"
)

// SessionLogEntry is an append-only audit record of a lifecycle event.
type SessionLogEntry struct {
	ID        string  `json:"id,omitempty"`
	SessionID string  `json:"session_id"`
	DeviceID  string  `json:"device"`
	Type      string  `json:"type"`
	Amount    float64 `json:"session_amount"`
}
