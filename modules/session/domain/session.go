// Package domain models the Audio Session Registry (§4.B): one record per
// duplex connection, its status, and the signal keys observed by the
// Audio Persistence Worker and Conversation Controller.
package domain

import "time"

// Status is the closed set of session states from §3.
type Status string

const (
	StatusActive     Status = "active"
	StatusFinalizing Status = "finalizing"
	StatusComplete   Status = "complete"
)

// CompletionReason explains why a session moved to finalizing/complete.
type CompletionReason string

const (
	ReasonUserStopped         CompletionReason = "user_stopped"
	ReasonWebsocketDisconnect CompletionReason = "websocket_disconnect"
	ReasonInactivityTimeout   CompletionReason = "inactivity_timeout"
	ReasonMaxDuration         CompletionReason = "max_duration"
)

// Session is the registry's in-memory/Redis-hash representation.
type Session struct {
	ID                    string
	ClientID              string
	UserID                string
	Status                Status
	CompletionReason      CompletionReason
	CurrentConversationID string
	ConversationCount     int
	CreatedAt             time.Time
}

// NewSession creates a fresh, active session.
func NewSession(id, clientID, userID string) *Session {
	return &Session{
		ID:        id,
		ClientID:  clientID,
		UserID:    userID,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}
}

// IsTerminal reports whether the session has left the active state.
func (s *Session) IsTerminal() bool {
	return s.Status == StatusFinalizing || s.Status == StatusComplete
}
