package infrastructure

import (
	"context"
	"fmt"
	"sync"

	"chronicle/server/jobs/domain"
)

// MemoryRepository is an in-process fake of domain.Repository for tests,
// matching the style of the conversation and session module fakes.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string]*domain.Job
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]*domain.Job)}
}

func (m *MemoryRepository) Insert(ctx context.Context, j *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.rows[j.GetID()] = &cp
	return nil
}

func (m *MemoryRepository) FindByID(ctx context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryRepository) Save(ctx context.Context, j *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[j.GetID()]; !ok {
		return fmt.Errorf("job not found: %s", j.GetID())
	}
	cp := *j
	m.rows[j.GetID()] = &cp
	return nil
}

func (m *MemoryRepository) Dependents(ctx context.Context, id string) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Job
	for _, j := range m.rows {
		for _, dep := range j.DependencyIDs {
			if dep == id {
				cp := *j
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

var _ domain.Repository = (*MemoryRepository)(nil)
