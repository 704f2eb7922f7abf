package infrastructure

import (
	"context"
	"fmt"
	"sync"

	"chronicle/server/modules/session/domain"
)

// MemoryRegistry is an in-process fake of domain.Registry for tests,
// preserving the CAS semantics of RedisRegistry without a Redis server.
type MemoryRegistry struct {
	mu           sync.Mutex
	sessions     map[string]*domain.Session
	currentConv  map[string]string
	audioFiles   map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sessions:    make(map[string]*domain.Session),
		currentConv: make(map[string]string),
		audioFiles:  make(map[string]string),
	}
}

func (m *MemoryRegistry) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryRegistry) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: not found", sessionID)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRegistry) TransitionToFinalizing(ctx context.Context, sessionID string, reason domain.CompletionReason) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return false, fmt.Errorf("session %s: not found", sessionID)
	}
	if s.Status != domain.StatusActive {
		return false, nil
	}
	s.Status = domain.StatusFinalizing
	s.CompletionReason = reason
	return true, nil
}

func (m *MemoryRegistry) Complete(ctx context.Context, sessionID string, ttl int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: not found", sessionID)
	}
	s.Status = domain.StatusComplete
	return nil
}

func (m *MemoryRegistry) SetCurrentConversation(ctx context.Context, sessionID, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentConv[sessionID] = conversationID
	if s, ok := m.sessions[sessionID]; ok {
		s.CurrentConversationID = conversationID
	}
	return nil
}

func (m *MemoryRegistry) ClearCurrentConversation(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.currentConv, sessionID)
	if s, ok := m.sessions[sessionID]; ok {
		s.CurrentConversationID = ""
	}
	return nil
}

func (m *MemoryRegistry) CurrentConversation(ctx context.Context, sessionID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.currentConv[sessionID]
	return v, ok, nil
}

func (m *MemoryRegistry) PublishAudioFile(ctx context.Context, conversationID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioFiles[conversationID] = path
	return nil
}

func (m *MemoryRegistry) AudioFile(ctx context.Context, conversationID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.audioFiles[conversationID]
	return v, ok, nil
}

func (m *MemoryRegistry) IncrementConversationCount(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("session %s: not found", sessionID)
	}
	s.ConversationCount++
	return s.ConversationCount, nil
}

var _ domain.Registry = (*MemoryRegistry)(nil)
