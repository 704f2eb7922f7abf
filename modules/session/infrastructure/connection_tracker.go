package infrastructure

import "sync"

// ConnectionTracker records which session ids currently have a live
// duplex websocket connection, in-process. The Audio Session Registry's
// status field answers "has this session reached a terminal status";
// this answers the narrower question the Conversation Controller's
// cleanup step needs — "is the physical connection still open right
// now" — which only the process holding that connection can know.
type ConnectionTracker struct {
	mu    sync.Mutex
	conns map[string]bool
}

func NewConnectionTracker() *ConnectionTracker {
	return &ConnectionTracker{conns: make(map[string]bool)}
}

func (t *ConnectionTracker) MarkConnected(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[sessionID] = true
}

func (t *ConnectionTracker) MarkDisconnected(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, sessionID)
}

func (t *ConnectionTracker) IsConnected(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[sessionID]
}
