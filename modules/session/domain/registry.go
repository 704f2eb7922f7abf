package domain

import "context"

// Registry is the Audio Session Registry contract from §4.B. Reads are
// concurrent; status transitions use compare-and-set so that
// active -> finalizing fires at most once.
type Registry interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)

	// TransitionToFinalizing moves status active -> finalizing exactly
	// once, recording reason. Returns ok=false if the session was already
	// past active (a no-op, not an error).
	TransitionToFinalizing(ctx context.Context, sessionID string, reason CompletionReason) (ok bool, err error)

	// Complete moves status -> complete and schedules TTL'd expiry of the
	// registry record.
	Complete(ctx context.Context, sessionID string, ttl int64) error

	// SetCurrentConversation sets/deletes conversation.current[session_id]
	// (§4.B's signal key observed by the persistence worker).
	SetCurrentConversation(ctx context.Context, sessionID, conversationID string) error
	ClearCurrentConversation(ctx context.Context, sessionID string) error
	CurrentConversation(ctx context.Context, sessionID string) (string, bool, error)

	// PublishAudioFile sets audio.file[conversation_id] = path, observed by
	// the Conversation Controller to proceed with post-processing.
	PublishAudioFile(ctx context.Context, conversationID, path string) error
	AudioFile(ctx context.Context, conversationID string) (string, bool, error)

	// IncrementConversationCount bumps session.conversation_count[session_id].
	IncrementConversationCount(ctx context.Context, sessionID string) (int, error)
}
