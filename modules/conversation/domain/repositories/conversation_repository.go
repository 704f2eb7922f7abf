// Package repositories declares the Conversation Store contract (§4.J).
package repositories

import (
	"context"

	"chronicle/server/modules/conversation/domain/entities"
)

// ConversationRepository is the Conversation Store's contract. It does
// not check §3's invariants itself: callers load a conversation, mutate
// it through entities.Conversation's methods (which enforce them), and
// Save the result.
type ConversationRepository interface {
	Insert(ctx context.Context, c *entities.Conversation) error
	FindByID(ctx context.Context, id string) (*entities.Conversation, error)
	FindByUser(ctx context.Context, userID string) ([]*entities.Conversation, error)
	FindByAudioUUID(ctx context.Context, audioUUID string) ([]*entities.Conversation, error)

	// Save persists the full current state of c (used after a mutation
	// method on entities.Conversation has already enforced invariants).
	Save(ctx context.Context, c *entities.Conversation) error
}
