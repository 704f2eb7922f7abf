// Package infrastructure adapts the Audio Session Registry (§4.B) and
// Stream Bus (§4.A) into the narrow seams the Conversation Controller
// (§4.G) depends on.
package infrastructure

import (
	"context"
	"fmt"

	sessiondomain "chronicle/server/modules/session/domain"
	sessioninfra "chronicle/server/modules/session/infrastructure"
	"chronicle/server/seedwork/infrastructure/bus"
)

// terminalRecordTTL is how long a completed session's registry hash
// lingers before expiry, matching RedisRegistry's own terminalTTL.
const terminalRecordTTL = 600

// SessionViewAdapter implements conversation.SessionView over a
// sessiondomain.Registry, a bus.Bus (for deleting the result stream on
// cleanup), and a ConnectionTracker (for the still-connected check the
// registry's own status field can't answer).
type SessionViewAdapter struct {
	Registry sessiondomain.Registry
	Bus      bus.Bus
	Tracker  *sessioninfra.ConnectionTracker
}

func NewSessionViewAdapter(registry sessiondomain.Registry, b bus.Bus, tracker *sessioninfra.ConnectionTracker) *SessionViewAdapter {
	return &SessionViewAdapter{Registry: registry, Bus: b, Tracker: tracker}
}

func (a *SessionViewAdapter) Status(ctx context.Context, sessionID string) (bool, string, error) {
	s, err := a.Registry.Get(ctx, sessionID)
	if err != nil {
		return false, "", fmt.Errorf("get session: %w", err)
	}
	return s.Status == sessiondomain.StatusActive, string(s.CompletionReason), nil
}

func (a *SessionViewAdapter) SetCurrentConversation(ctx context.Context, sessionID, conversationID string) error {
	return a.Registry.SetCurrentConversation(ctx, sessionID, conversationID)
}

func (a *SessionViewAdapter) ClearCurrentConversation(ctx context.Context, sessionID string) error {
	return a.Registry.ClearCurrentConversation(ctx, sessionID)
}

func (a *SessionViewAdapter) AudioFile(ctx context.Context, conversationID string) (string, bool, error) {
	return a.Registry.AudioFile(ctx, conversationID)
}

func (a *SessionViewAdapter) IncrementConversationCount(ctx context.Context, sessionID string) (int, error) {
	return a.Registry.IncrementConversationCount(ctx, sessionID)
}

func (a *SessionViewAdapter) DeleteResultsStream(ctx context.Context, sessionID string) error {
	_, resultsStream := bus.StreamNames(sessionID)
	return a.Bus.Delete(ctx, resultsStream)
}

func (a *SessionViewAdapter) CompleteSessionRecord(ctx context.Context, sessionID string) error {
	return a.Registry.Complete(ctx, sessionID, terminalRecordTTL)
}

// SessionStillActive reports whether the duplex connection owning
// sessionID is still physically open, so the Speech-Detection
// Controller should be rearmed for another conversation under the same
// connection (§4.G's cleanup action).
func (a *SessionViewAdapter) SessionStillActive(ctx context.Context, sessionID string) (bool, error) {
	return a.Tracker.IsConnected(sessionID), nil
}
