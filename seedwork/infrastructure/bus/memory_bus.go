package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBus is an in-process fake used by tests, following the teacher's
// MemoryEventBus pattern (seedwork/infrastructure/events/memory_event_bus.go)
// generalized from pub/sub to an ordered, ack-tracked stream.
type MemoryBus struct {
	mu      sync.Mutex
	seq     int64
	streams map[string][]Entry
	pending map[string]map[string]map[string]time.Time // stream -> group -> id -> deliveredAt
}

// NewMemoryBus constructs an empty in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		streams: make(map[string][]Entry),
		pending: make(map[string]map[string]map[string]time.Time),
	}
}

func (b *MemoryBus) nextID() string {
	b.seq++
	return fmt.Sprintf("%d-0", b.seq)
}

func (b *MemoryBus) Append(ctx context.Context, stream string, payload map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID()
	cp := make(map[string]string, len(payload))
	for k, v := range payload {
		cp[k] = v
	}
	b.streams[stream] = append(b.streams[stream], Entry{ID: id, Payload: cp})
	return id, nil
}

func (b *MemoryBus) EnsureGroup(ctx context.Context, stream, group string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[stream] == nil {
		b.pending[stream] = make(map[string]map[string]time.Time)
	}
	if b.pending[stream][group] == nil {
		b.pending[stream][group] = make(map[string]time.Time)
	}
	return nil
}

func (b *MemoryBus) Read(ctx context.Context, stream, group, consumer string, maxBatch int64, block time.Duration) ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if group == "" {
		entries := append([]Entry(nil), b.streams[stream]...)
		return entries, nil
	}

	if b.pending[stream] == nil {
		b.pending[stream] = make(map[string]map[string]time.Time)
	}
	if b.pending[stream][group] == nil {
		b.pending[stream][group] = make(map[string]time.Time)
	}
	delivered := b.pending[stream][group]

	var out []Entry
	for _, e := range b.streams[stream] {
		if _, seen := delivered[e.ID]; seen {
			continue
		}
		delivered[e.ID] = time.Now()
		out = append(out, e)
		if maxBatch > 0 && int64(len(out)) >= maxBatch {
			break
		}
	}
	return out, nil
}

func (b *MemoryBus) Ack(ctx context.Context, stream, group string, ids ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[stream] == nil || b.pending[stream][group] == nil {
		return nil
	}
	for _, id := range ids {
		delete(b.pending[stream][group], id)
	}
	return nil
}

func (b *MemoryBus) Len(ctx context.Context, stream string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.streams[stream])), nil
}

func (b *MemoryBus) Delete(ctx context.Context, stream string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.streams, stream)
	delete(b.pending, stream)
	return nil
}

func (b *MemoryBus) ClaimIdle(ctx context.Context, stream, group, consumer string, idle time.Duration) ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	groupPending := b.pending[stream][group]
	if groupPending == nil {
		return nil, nil
	}
	var ids []string
	cutoff := time.Now().Add(-idle)
	for id, deliveredAt := range groupPending {
		if deliveredAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	byID := make(map[string]Entry, len(ids))
	for _, e := range b.streams[stream] {
		byID[e.ID] = e
	}
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			out = append(out, e)
		}
		delete(groupPending, id)
	}
	return out, nil
}
