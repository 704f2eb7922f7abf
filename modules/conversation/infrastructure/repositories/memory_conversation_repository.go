package repositories

import (
	"context"
	"fmt"
	"sync"

	"chronicle/server/modules/conversation/domain/entities"
	domainrepo "chronicle/server/modules/conversation/domain/repositories"
)

// MemoryConversationRepository is an in-process fake used by tests.
type MemoryConversationRepository struct {
	mu   sync.Mutex
	rows map[string]*entities.Conversation
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{rows: make(map[string]*entities.Conversation)}
}

func (r *MemoryConversationRepository) Insert(ctx context.Context, c *entities.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.rows[c.GetID()] = &cp
	return nil
}

func (r *MemoryConversationRepository) FindByID(ctx context.Context, id string) (*entities.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("conversation not found: %s", id)
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryConversationRepository) FindByUser(ctx context.Context, userID string) ([]*entities.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Conversation
	for _, c := range r.rows {
		if c.UserID == userID && !c.Deleted {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryConversationRepository) FindByAudioUUID(ctx context.Context, audioUUID string) ([]*entities.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.Conversation
	for _, c := range r.rows {
		if c.AudioUUID == audioUUID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryConversationRepository) Save(ctx context.Context, c *entities.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[c.GetID()]; !ok {
		return fmt.Errorf("conversation not found: %s", c.GetID())
	}
	cp := *c
	r.rows[c.GetID()] = &cp
	return nil
}

var _ domainrepo.ConversationRepository = (*MemoryConversationRepository)(nil)
